package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nadmax/wordsprint/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	q, err := NewQueue(mr.Addr(), "")
	require.NoError(t, err)

	return q, mr
}

func TestNewQueue(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	assert.NotNil(t, q.Client())
	assert.Equal(t, DefaultList, q.list)
}

func TestNewQueue_InvalidAddress(t *testing.T) {
	_, err := NewQueue("invalid:99999", "")
	assert.Error(t, err)
}

func TestSayAndPop(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	var n notify.Notifier = q

	require.NoError(t, n.Say(ctx, notify.Announcement{Guild: "g1", Channel: "c1", Message: "first"}))
	require.NoError(t, n.Say(ctx, notify.Announcement{Guild: "g1", Channel: "c1", Message: "second"}))

	length, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "first", msg.Announcement.Message)
	assert.Equal(t, "c1", msg.Announcement.Channel)

	msg, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Announcement.Message)
}

func TestPopEmpty(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	msg, err := q.Pop(context.Background(), time.Second)
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMessageFromJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		original := NewMessage(notify.Announcement{Guild: "g1", Message: "hi"})
		data, err := original.ToJSON()
		require.NoError(t, err)

		restored, err := MessageFromJSON(data)
		require.NoError(t, err)
		assert.Equal(t, original.ID, restored.ID)
		assert.Equal(t, original.Announcement, restored.Announcement)
		assert.True(t, original.CreatedAt.Equal(restored.CreatedAt))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := MessageFromJSON("not json")
		assert.Error(t, err)
	})
}
