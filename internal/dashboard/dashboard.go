// Package dashboard implements the read-only monitoring views over pending
// tasks and the sprint running in a guild.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/httputil"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/sprint"
	"github.com/nadmax/wordsprint/internal/task"
)

type Source interface {
	ListTasks(ctx context.Context) ([]*task.Task, error)
	TaskStats(ctx context.Context, now int64) ([]models.TaskStats, error)
	ActiveSprint(ctx context.Context, guild string) (*models.Sprint, error)
	Participants(ctx context.Context, sprintID int64) ([]*models.Participant, error)
}

type Dashboard struct {
	source Source
	clock  clock.Clock
}

type Stats struct {
	TotalTasks      int                `json:"total_tasks"`
	ProcessingTasks int                `json:"processing_tasks"`
	OverdueTasks    int                `json:"overdue_tasks"`
	RecurringTasks  int                `json:"recurring_tasks"`
	TasksByType     map[string]int     `json:"tasks_by_type"`
	Breakdown       []models.TaskStats `json:"breakdown"`
	NextDueIn       string             `json:"next_due_in"`
	LastUpdated     time.Time          `json:"last_updated"`
}

type UpcomingTask struct {
	TaskID     int64  `json:"task_id"`
	Key        string `json:"key"`
	Time       int64  `json:"time"`
	DueIn      string `json:"due_in"`
	Processing bool   `json:"processing"`
	Recurring  bool   `json:"recurring"`
}

type SprintView struct {
	Sprint       *models.Sprint        `json:"sprint"`
	State        string                `json:"state"`
	Participants []*models.Participant `json:"participants"`
	Undeclared   int                   `json:"undeclared"`
}

func NewDashboard(source Source, clk clock.Clock) *Dashboard {
	return &Dashboard{source: source, clock: clk}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	now := clock.Unix(d.clock)

	tasks, err := d.source.ListTasks(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	breakdown, err := d.source.TaskStats(r.Context(), now)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := Stats{
		TotalTasks:  len(tasks),
		TasksByType: make(map[string]int),
		Breakdown:   breakdown,
		NextDueIn:   "N/A",
		LastUpdated: d.clock.Now(),
	}

	var next *task.Task
	for _, t := range tasks {
		if t.Processing {
			stats.ProcessingTasks++
		}
		if t.Recurring {
			stats.RecurringTasks++
		}
		if t.Due(now) {
			stats.OverdueTasks++
		} else if next == nil || t.Time < next.Time {
			next = t
		}
		stats.TasksByType[string(t.Object)+"/"+string(t.Type)]++
	}

	switch {
	case stats.OverdueTasks > 0:
		stats.NextDueIn = "now"
	case next != nil:
		stats.NextDueIn = clock.FormatSeconds(next.Time - now)
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

// GetUpcoming lists pending tasks in due order. Tasks already due show
// a due_in of "now".
func (d *Dashboard) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	now := clock.Unix(d.clock)

	tasks, err := d.source.ListTasks(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	upcoming := []UpcomingTask{}
	for _, t := range tasks {
		dueIn := "now"
		if !t.Due(now) {
			dueIn = clock.FormatSeconds(t.Time - now)
		}
		upcoming = append(upcoming, UpcomingTask{
			TaskID:     t.ID,
			Key:        t.Key().String(),
			Time:       t.Time,
			DueIn:      dueIn,
			Processing: t.Processing,
			Recurring:  t.Recurring,
		})
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].Time < upcoming[j].Time })

	httputil.WriteJSON(w, http.StatusOK, upcoming)
}

func (d *Dashboard) GetSprint(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")

	sp, err := d.source.ActiveSprint(r.Context(), guild)
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteJSONError(w, "no sprint running", http.StatusNotFound)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	users, err := d.source.Participants(r.Context(), sp.ID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	view := SprintView{
		Sprint:       sp,
		State:        sprint.Derive(sp, clock.Unix(d.clock)).String(),
		Participants: users,
	}
	for _, p := range users {
		if p.Counted() && !p.Declared() {
			view.Undeclared++
		}
	}

	httputil.WriteJSON(w, http.StatusOK, view)
}
