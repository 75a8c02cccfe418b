package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/goal"
	"github.com/nadmax/wordsprint/internal/lock"
	"github.com/nadmax/wordsprint/internal/notify"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/scheduler"
	"github.com/nadmax/wordsprint/internal/sprint"
	"github.com/nadmax/wordsprint/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Unix(1_700_000_000, 0)

type testAPI struct {
	api   *API
	store *repository.MemoryStore
	notes *notify.Recorder
	clk   *clock.FakeClock
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := repository.NewMemoryStore()
	clk := clock.Fake(epoch)
	notes := &notify.Recorder{}
	logger := zap.NewNop()

	sched := scheduler.New("test", store, clk, logger)
	goals := goal.NewService(store, clk, logger)
	sprints := sprint.NewService(store, sched, notes, lock.NewLocal(), clk, logger)
	sprints.SetGoals(goals)
	sched.RegisterSprintJobs(sprints)
	sched.RegisterGoalJobs(goals)

	return &testAPI{
		api:   NewAPI(sprints, goals, store, clk, logger),
		store: store,
		notes: notes,
		clk:   clk,
	}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	ta.api.ServeHTTP(w, req)
	return w
}

func (ta *testAPI) command(t *testing.T, command string, req CommandRequest) sprint.Reply {
	t.Helper()

	w := ta.do(t, http.MethodPost, "/api/guilds/guild-1/sprint/"+command, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply sprint.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	return reply
}

func TestHealth(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ta := setupTestAPI(t)

	ta.do(t, http.MethodGet, "/health", nil)
	w := ta.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCommand_ForAndStatus(t *testing.T) {
	ta := setupTestAPI(t)

	reply := ta.command(t, "for", CommandRequest{User: "a", Channel: "chan-1", Length: 20})
	assert.Contains(t, reply.Text, "**Sprint has started**")
	assert.Contains(t, reply.Text, "**20 minutes**")

	sp, err := ta.store.ActiveSprint(context.Background(), "guild-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", sp.Channel)
	assert.Equal(t, "a", sp.CreatedBy)

	ta.clk.Advance(5 * time.Minute)
	reply = ta.command(t, "status", CommandRequest{User: "a"})
	assert.NotEmpty(t, reply.Text)
}

func TestCommand_FullSprint(t *testing.T) {
	ta := setupTestAPI(t)

	ta.command(t, "for", CommandRequest{User: "a", Channel: "chan-1", Length: 20})
	reply := ta.command(t, "join", CommandRequest{User: "b", Initial: 500})
	assert.Equal(t, "<@b>, you have joined the sprint with **500** words.", reply.Text)

	ta.clk.Advance(5 * time.Minute)
	reply = ta.command(t, "wrote", CommandRequest{User: "b", Amount: -100})
	assert.Contains(t, reply.Text, "you updated your word count to **400**")

	reply = ta.command(t, "wc", CommandRequest{User: "b", Amount: 300})
	assert.Contains(t, reply.Text, "is less than the word count you started with")

	reply = ta.command(t, "leave", CommandRequest{User: "b"})
	assert.Equal(t, "<@b>, you have left the sprint.", reply.Text)

	reply = ta.command(t, "cancel", CommandRequest{User: "a"})
	assert.NotEmpty(t, reply.Text)

	_, err := ta.store.ActiveSprint(context.Background(), "guild-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCommand_NoSprint(t *testing.T) {
	ta := setupTestAPI(t)

	for _, command := range []string{"join", "leave", "wrote", "declare", "end", "cancel", "status"} {
		t.Run(command, func(t *testing.T) {
			reply := ta.command(t, command, CommandRequest{User: "a", Amount: 10})
			assert.Contains(t, reply.Text, "there is no sprint running")
		})
	}
}

func TestCommand_PersonalBest(t *testing.T) {
	ta := setupTestAPI(t)

	reply := ta.command(t, "pb", CommandRequest{User: "a"})
	assert.Contains(t, reply.Text, "you do not yet have a wpm personal best")

	require.NoError(t, ta.store.SetRecord(context.Background(), "a", "wpm", 42))
	reply = ta.command(t, "pb", CommandRequest{User: "a"})
	assert.Equal(t, "<@a>, your personal best is **42** wpm.", reply.Text)
}

func TestCommand_Notify(t *testing.T) {
	ta := setupTestAPI(t)

	ta.command(t, "notify", CommandRequest{User: "b", On: true})

	users, err := ta.store.UsersWithSetting(context.Background(), "guild-1", "sprint_notify", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, users)

	reply := ta.command(t, "for", CommandRequest{User: "a", Length: 10})
	assert.Contains(t, reply.Text, "<@b>")
}

func TestCommand_PurgeNeedsPermission(t *testing.T) {
	ta := setupTestAPI(t)

	reply := ta.command(t, "purge", CommandRequest{User: "a", Who: "b"})
	assert.Contains(t, reply.Text, "you do not have permission")
}

func TestCommand_Unknown(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodPost, "/api/guilds/guild-1/sprint/dance", CommandRequest{User: "a"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown command: dance")
}

func TestCommand_InvalidBody(t *testing.T) {
	ta := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/guilds/guild-1/sprint/for", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	ta.api.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommand_MissingUser(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodPost, "/api/guilds/guild-1/sprint/for", CommandRequest{Length: 10})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user is required")
}

func TestCommand_StoreError(t *testing.T) {
	ta := setupTestAPI(t)
	ta.store.Errors["ActiveSprint"] = errors.New("db down")

	w := ta.do(t, http.MethodPost, "/api/guilds/guild-1/sprint/for", CommandRequest{User: "a"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "command failed")
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestGetSprint(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodGet, "/api/guilds/guild-1/sprint", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ta.command(t, "for", CommandRequest{User: "a", Length: 15, In: 5})

	w = ta.do(t, http.MethodGet, "/api/guilds/guild-1/sprint", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view struct {
		State        string                `json:"state"`
		Participants []*models.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "scheduled", view.State)
	assert.Len(t, view.Participants, 1)
}

func TestListTasks(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ta.command(t, "for", CommandRequest{User: "a", Length: 15, In: 5})

	w = ta.do(t, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tasks []*task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, task.TypeStart, tasks[0].Type)
	assert.Equal(t, epoch.Unix()+300, tasks[0].Time)
}

func TestListTasks_StoreError(t *testing.T) {
	ta := setupTestAPI(t)
	ta.store.Errors["ListTasks"] = errors.New("db down")

	w := ta.do(t, http.MethodGet, "/api/tasks", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetTask(t *testing.T) {
	ta := setupTestAPI(t)

	tsk := task.New(task.SprintEnd{SprintID: 9}, epoch.Unix()+60)
	_, err := ta.store.InsertTask(context.Background(), tsk)
	require.NoError(t, err)

	w := ta.do(t, http.MethodGet, "/api/tasks/"+strconv.FormatInt(tsk.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, tsk.ID, got.ID)
	assert.Equal(t, task.TypeEnd, got.Type)
	require.NotNil(t, got.ObjectID)
	assert.Equal(t, int64(9), *got.ObjectID)
}

func TestGetTask_NotFound(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodGet, "/api/tasks/404", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTask_InvalidID(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodGet, "/api/tasks/abc", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardRoutes(t *testing.T) {
	ta := setupTestAPI(t)
	ta.command(t, "for", CommandRequest{User: "a", Length: 15})

	w := ta.do(t, http.MethodGet, "/api/dashboard/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_tasks":1`)

	w = ta.do(t, http.MethodGet, "/api/dashboard/upcoming", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"due_in":"15 minutes"`)
}

func TestGoals(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodGet, "/api/users/a/goals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = ta.do(t, http.MethodPut, "/api/users/a/goals", GoalRequest{Type: goal.Daily, Words: 500})
	require.Equal(t, http.StatusOK, w.Code)

	var g models.Goal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, "daily", g.Type)
	assert.Equal(t, 500, g.Goal)
	assert.Greater(t, g.Reset, epoch.Unix())

	w = ta.do(t, http.MethodGet, "/api/users/a/goals", nil)
	var goals []*models.Goal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &goals))
	assert.Len(t, goals, 1)
}

func TestSetGoal_InvalidType(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodPut, "/api/users/a/goals", GoalRequest{Type: "hourly", Words: 10})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid goal type")
}

func TestSetOffset(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(t, http.MethodPut, "/api/users/a/offset", OffsetRequest{Minutes: 120})
	assert.Equal(t, http.StatusNoContent, w.Code)

	v, err := ta.store.UserSetting(context.Background(), "a", "", goal.SettingOffset)
	require.NoError(t, err)
	assert.Equal(t, "120", v)

	w = ta.do(t, http.MethodPut, "/api/users/a/offset", OffsetRequest{Minutes: 15 * 60})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
