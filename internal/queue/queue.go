// Package queue is the Redis outbox for channel announcements. The bot
// process that owns the Discord gateway pops messages off the list and
// posts them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nadmax/wordsprint/internal/notify"
	"github.com/redis/go-redis/v9"
)

const DefaultList = "wordsprint:announcements"

type Queue struct {
	client *redis.Client
	list   string
}

func NewQueue(redisAddr, list string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewQueueFromClient(client, list), nil
}

func NewQueueFromClient(client *redis.Client, list string) *Queue {
	if list == "" {
		list = DefaultList
	}
	return &Queue{client: client, list: list}
}

// Say implements notify.Notifier.
func (q *Queue) Say(ctx context.Context, a notify.Announcement) error {
	msgJSON, err := NewMessage(a).ToJSON()
	if err != nil {
		return err
	}

	return q.client.RPush(ctx, q.list, msgJSON).Err()
}

// Pop waits up to timeout for the oldest message. It returns nil, nil
// when nothing arrived.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.client.BLPop(ctx, timeout, q.list).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// res is [list, value]
	return MessageFromJSON(res[1])
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.list).Result()
}

func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Close() error {
	return q.client.Close()
}
