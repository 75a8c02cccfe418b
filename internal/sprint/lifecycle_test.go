package sprint

import (
	"context"
	"testing"
	"time"

	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSprintEndToEnd(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	created := f.now()

	sp := f.start(t, "a", 20)
	assert.Equal(t, created, sp.Start)
	assert.Equal(t, created+1200, sp.End)

	f.join(t, "a", 0)
	f.join(t, "b", 500)

	f.clk.Advance(20 * time.Minute)
	f.sched.Poll(ctx)

	ended := f.active(t)
	assert.Zero(t, ended.End)
	assert.Equal(t, created+1200, ended.EndReference)

	msgs := f.notes.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "**Time is up**")
	assert.Equal(t, "chan-1", f.notes.Sent()[0].Channel)

	tasks := f.tasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.TypeComplete, tasks[0].Type)
	assert.Equal(t, f.now()+DefaultPostDelay*60, tasks[0].Time)

	f.clk.Advance(30 * time.Second)

	reply, err := f.svc.Declare(ctx, caller("a"), 600)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Total words written in this sprint: **600**")
	assert.Empty(t, reply.FollowUp)

	reply, err = f.svc.Declare(ctx, caller("b"), 900)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Total words written in this sprint: **400**")
	assert.Contains(t, reply.FollowUp, "**The results are in!**")
	assert.Contains(t, reply.FollowUp, "`1`. <@a> - **600 words** (30 wpm) +125xp")
	assert.Contains(t, reply.FollowUp, "`2`. <@b> - **400 words** (20 wpm) +75xp")
	assert.Contains(t, reply.FollowUp, "<@a> has reached level **2**!")

	done, err := f.store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now(), done.Completed)
	assert.Empty(t, f.tasks(t))
	assert.Zero(t, activeCount(f.store, testGuild))

	assert.Equal(t, int64(125), f.store.XP["a"])
	assert.Equal(t, int64(75), f.store.XP["b"])
	assert.Equal(t, int64(1), f.store.Stats["a"][statCompleted])
	assert.Equal(t, int64(600), f.store.Stats["a"][statWords])
	assert.Equal(t, int64(600), f.store.Stats["a"][statTotalWords])
	assert.Equal(t, int64(400), f.store.Stats["b"][statWords])
	assert.Equal(t, int64(30), f.store.Records["a"][recordWPM])
	assert.Equal(t, int64(20), f.store.Records["b"][recordWPM])
	assert.Equal(t, map[string]int{"a": 600, "b": 400}, f.goals.words)

	f.clk.Advance(5 * time.Minute)
	f.sched.Poll(ctx)
	assert.Len(t, f.notes.Messages(), 1)
}

// finishAll ends the running sprint and declares a final count for each
// user, completing it.
func (f *fixture) finishAll(t *testing.T, owner string, declared map[string]int, order ...string) Reply {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.End(ctx, caller(owner))
	require.NoError(t, err)

	var last Reply
	for _, user := range order {
		last, err = f.svc.Declare(ctx, caller(user), declared[user])
		require.NoError(t, err)
	}
	return last
}

func TestComplete_TieForFirst(t *testing.T) {
	f := setupService(t)
	f.start(t, "a", 20)
	f.join(t, "b", 0)
	f.join(t, "c", 0)
	f.clk.Advance(10 * time.Minute)

	reply := f.finishAll(t, "a", map[string]int{"a": 500, "b": 500, "c": 100}, "a", "b", "c")

	assert.Contains(t, reply.FollowUp, "`1`. <@a> - **500 words**")
	assert.Contains(t, reply.FollowUp, "`1`. <@b> - **500 words**")
	assert.Contains(t, reply.FollowUp, "`3`. <@c> - **100 words**")
	assert.Equal(t, int64(125), f.store.XP["a"])
	assert.Equal(t, int64(125), f.store.XP["b"])
	assert.Equal(t, int64(25+34), f.store.XP["c"])
}

func TestComplete_SingleParticipantNoBonus(t *testing.T) {
	f := setupService(t)
	f.start(t, "a", 20)
	f.clk.Advance(10 * time.Minute)

	reply := f.finishAll(t, "a", map[string]int{"a": 300}, "a")

	assert.Contains(t, reply.FollowUp, "`1`. <@a> - **300 words** (30 wpm) +25xp")
	assert.Equal(t, int64(25), f.store.XP["a"])
}

func TestComplete_UnchangedCountNotScored(t *testing.T) {
	f := setupService(t)
	f.start(t, "a", 20)
	f.join(t, "b", 100)
	f.clk.Advance(10 * time.Minute)

	reply := f.finishAll(t, "a", map[string]int{"a": 300, "b": 100}, "a", "b")

	assert.NotContains(t, reply.FollowUp, "<@b>")
	assert.Zero(t, f.store.XP["b"])
	assert.Zero(t, f.store.Stats["b"][statCompleted])
	assert.Equal(t, int64(25), f.store.XP["a"])
}

func TestComplete_NoWordcountParticipant(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.start(t, "a", 20)
	_, err := f.svc.Join(ctx, caller("b"), JoinOptions{Type: models.TypeNoWordcount})
	require.NoError(t, err)
	f.clk.Advance(10 * time.Minute)

	reply := f.finishAll(t, "a", map[string]int{"a": 300}, "a")

	assert.Contains(t, reply.FollowUp, "Thanks for keeping us company, <@b>.")
	assert.Equal(t, int64(25), f.store.XP["b"])
	assert.Equal(t, int64(1), f.store.Stats["b"][statCompleted])
	assert.Zero(t, f.store.Stats["b"][statWords])
	assert.Equal(t, int64(25), f.store.XP["a"])
}

func TestComplete_UndeclaredUsesCurrent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.start(t, "a", 20)
	f.join(t, "b", 0)
	f.clk.Advance(5 * time.Minute)

	_, err := f.svc.Wrote(ctx, caller("a"), 200)
	require.NoError(t, err)
	_, err = f.svc.Wrote(ctx, caller("b"), 100)
	require.NoError(t, err)

	f.clk.Advance(15 * time.Minute)
	f.sched.Poll(ctx)

	_, err = f.svc.Declare(ctx, caller("b"), 450)
	require.NoError(t, err)

	f.clk.Advance(2 * time.Minute)
	f.sched.Poll(ctx)

	msgs := f.notes.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "`1`. <@b> - **450 words**")
	assert.Contains(t, msgs[1], "`2`. <@a> - **200 words**")
	assert.Empty(t, f.tasks(t))
	assert.Zero(t, activeCount(f.store, testGuild))
}

func TestComplete_WPMFloorAndRecord(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetUserSetting(ctx, "a", "", settingMaxWPM, "1000"))

	f.start(t, "a", 20)
	f.clk.Advance(10 * time.Second)

	reply := f.finishAll(t, "a", map[string]int{"a": 30}, "a")

	assert.Contains(t, reply.FollowUp, "**30 words** (30 wpm)")
	assert.Equal(t, int64(30), f.store.Records["a"][recordWPM])
}

func TestComplete_KeepsBetterPersonalBest(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetRecord(ctx, "a", recordWPM, 100))

	f.start(t, "a", 20)
	f.clk.Advance(20 * time.Minute)

	reply := f.finishAll(t, "a", map[string]int{"a": 600}, "a")

	assert.NotContains(t, reply.FollowUp, "new personal best")
	assert.Equal(t, int64(100), f.store.Records["a"][recordWPM])
}

func TestComplete_CreditsProject(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	projectID := f.store.AddProject(&models.Project{User: "a", Name: "Novel", Shortname: "novel", Words: 1000})

	f.start(t, "a", 20)
	_, err := f.svc.Join(ctx, caller("a"), JoinOptions{Project: "novel"})
	require.NoError(t, err)
	f.clk.Advance(10 * time.Minute)

	f.finishAll(t, "a", map[string]int{"a": 250}, "a")

	assert.Equal(t, 1250, f.store.Projects[projectID].Words)
}

func TestComplete_NegativeDeltaNotCredited(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.start(t, "a", 20)
	f.join(t, "a", 500)
	f.clk.Advance(10 * time.Minute)

	_, err := f.svc.Wrote(ctx, caller("a"), -100)
	require.NoError(t, err)

	f.clk.Advance(10 * time.Minute)
	f.sched.Poll(ctx)
	f.clk.Advance(2 * time.Minute)
	f.sched.Poll(ctx)

	msgs := f.notes.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "**-100 words**")
	assert.Equal(t, int64(25), f.store.XP["a"])
	assert.Zero(t, f.store.Stats["a"][statWords])
	_, hasRecord := f.store.Records["a"]
	assert.False(t, hasRecord)
	assert.Empty(t, f.goals.words)
}

func TestComplete_Idempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	sp := f.start(t, "a", 20)
	f.clk.Advance(10 * time.Minute)
	f.finishAll(t, "a", map[string]int{"a": 300}, "a")

	done, err := f.svc.CompleteSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int64(25), f.store.XP["a"])

	loaded, err := f.store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	msg, err := f.svc.complete(ctx, loaded, f.now())
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestComplete_RetryAfterFailureCreditsOnce(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	sp := f.start(t, "a", 20)
	f.join(t, "b", 0)
	f.clk.Advance(20 * time.Minute)
	f.sched.Poll(ctx)

	_, err := f.svc.Declare(ctx, caller("a"), 300)
	require.NoError(t, err)

	f.clk.Advance(2 * time.Minute)
	f.store.Errors["AddXP"] = assert.AnError
	f.sched.Poll(ctx)

	got, err := f.store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now(), got.Completed)
	assert.Equal(t, int64(300), f.store.Stats["a"][statWords])
	require.Len(t, f.tasks(t), 1)

	delete(f.store.Errors, "AddXP")
	f.clk.Advance(5 * time.Second)
	f.sched.Poll(ctx)

	assert.Equal(t, int64(300), f.store.Stats["a"][statWords])
	assert.Equal(t, int64(300), f.store.Stats["a"][statTotalWords])
	assert.Equal(t, int64(1), f.store.Stats["a"][statCompleted])
	assert.Equal(t, 300, f.goals.words["a"])
	assert.Empty(t, f.tasks(t))
}

func TestComplete_LosesRaceToOtherRunner(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	sp := f.start(t, "a", 20)
	f.clk.Advance(20 * time.Minute)
	f.sched.Poll(ctx)

	// Another worker completes the sprint after this one loaded it.
	stale, err := f.store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	claimed, err := f.store.MarkSprintCompleted(ctx, sp.ID, f.now())
	require.NoError(t, err)
	require.True(t, claimed)

	msg, err := f.svc.complete(ctx, stale, f.now())
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Zero(t, f.store.XP["a"])
}

func TestLeaderboard(t *testing.T) {
	rs := []*Result{
		{User: "a", Words: 600, WPM: 30, XP: 125, Rank: 1, NewPB: true},
		{User: "b", Words: 400, WPM: 20, XP: 75, Rank: 2},
	}

	got := leaderboard(rs, []string{"<@c>"}, []string{"<@a> has reached level **2**!"})

	want := "**The results are in!**\nCongratulations to everyone.\n" +
		"`1`. <@a> - **600 words** (30 wpm) +125xp :trophy: new personal best\n" +
		"`2`. <@b> - **400 words** (20 wpm) +75xp\n" +
		"\nThanks for keeping us company, <@c>.\n" +
		"<@a> has reached level **2**!"
	assert.Equal(t, want, got)
}

func TestLeaderboard_Empty(t *testing.T) {
	got := leaderboard(nil, nil, nil)
	assert.Equal(t, "**Sprint has been cancelled**\nNobody wrote any words, so there are no results this time.", got)
}
