// Package api exposes the sprint command surface, goals and the task
// dashboard over HTTP for the chat gateway and operators.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/dashboard"
	"github.com/nadmax/wordsprint/internal/goal"
	"github.com/nadmax/wordsprint/internal/httputil"
	"github.com/nadmax/wordsprint/internal/middleware"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/sprint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CommandRequest is the body of a sprint command. Only the fields the
// command reads are used.
type CommandRequest struct {
	User      string `json:"user"`
	Channel   string `json:"channel"`
	CanManage bool   `json:"can_manage"`

	Length  int                    `json:"length"`
	In      int                    `json:"in"`
	Amount  int                    `json:"amount"`
	Initial int                    `json:"initial"`
	Type    models.ParticipantType `json:"type"`
	Project string                 `json:"project"`
	On      bool                   `json:"on"`
	Who     string                 `json:"who"`
}

type GoalRequest struct {
	Type  goal.Type `json:"type"`
	Words int       `json:"words"`
}

type OffsetRequest struct {
	Minutes int `json:"minutes"`
}

type API struct {
	sprints   *sprint.Service
	goals     *goal.Service
	store     repository.Store
	dashboard *dashboard.Dashboard
	logger    *zap.Logger
	router    chi.Router
}

func NewAPI(sprints *sprint.Service, goals *goal.Service, store repository.Store, clk clock.Clock, logger *zap.Logger) *API {
	api := &API{
		sprints:   sprints,
		goals:     goals,
		store:     store,
		dashboard: dashboard.NewDashboard(store, clk),
		logger:    logger,
		router:    chi.NewRouter(),
	}
	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	r := a.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(a.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.MetricsMiddleware)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/guilds/{guild}/sprint", func(r chi.Router) {
			r.Get("/", a.dashboard.GetSprint)
			r.Post("/{command}", a.handleCommand)
		})

		r.Get("/tasks", a.listTasks)
		r.Get("/tasks/{id}", a.getTask)

		r.Get("/dashboard/stats", a.dashboard.GetStats)
		r.Get("/dashboard/upcoming", a.dashboard.GetUpcoming)

		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/goals", a.listGoals)
			r.Put("/goals", a.setGoal)
			r.Put("/offset", a.setOffset)
		})
	})
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.User == "" {
		httputil.WriteJSONError(w, "user is required", http.StatusBadRequest)
		return
	}

	c := sprint.Caller{
		Guild:     chi.URLParam(r, "guild"),
		Channel:   req.Channel,
		User:      req.User,
		CanManage: req.CanManage,
	}
	ctx := r.Context()
	command := chi.URLParam(r, "command")

	var (
		reply sprint.Reply
		err   error
	)
	switch command {
	case "for":
		reply, err = a.sprints.For(ctx, c, req.Length, req.In)
	case "join":
		reply, err = a.sprints.Join(ctx, c, sprint.JoinOptions{Initial: req.Initial, Type: req.Type, Project: req.Project})
	case "leave":
		reply, err = a.sprints.Leave(ctx, c)
	case "wrote":
		reply, err = a.sprints.Wrote(ctx, c, req.Amount)
	case "wc", "declare":
		reply, err = a.sprints.Declare(ctx, c, req.Amount)
	case "end":
		reply, err = a.sprints.End(ctx, c)
	case "cancel":
		reply, err = a.sprints.Cancel(ctx, c)
	case "status":
		reply, err = a.sprints.Status(ctx, c)
	case "notify":
		reply, err = a.sprints.Notify(ctx, c, req.On)
	case "purge":
		reply, err = a.sprints.Purge(ctx, c, req.Who)
	case "project":
		reply, err = a.sprints.Project(ctx, c, req.Project)
	case "pb":
		reply, err = a.sprints.PersonalBest(ctx, c)
	default:
		httputil.WriteJSONError(w, "unknown command: "+command, http.StatusNotFound)
		return
	}

	if err != nil {
		a.logger.Error("sprint command failed",
			zap.String("command", command),
			zap.String("guild", c.Guild),
			zap.String("user", c.User),
			zap.Error(err),
		)
		httputil.WriteJSONError(w, "command failed", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, reply)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.store.ListTasks(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tasks)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteJSONError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	tasks, err := a.store.ListTasks(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, t := range tasks {
		if t.ID == id {
			httputil.WriteJSON(w, http.StatusOK, t)
			return
		}
	}

	httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
}

func (a *API) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := a.goals.Goals(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if goals == nil {
		goals = []*models.Goal{}
	}

	httputil.WriteJSON(w, http.StatusOK, goals)
}

func (a *API) setGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	g, err := a.goals.Set(r.Context(), chi.URLParam(r, "user"), req.Type, req.Words)
	if errors.Is(err, goal.ErrInvalidType) {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, g)
}

func (a *API) setOffset(w http.ResponseWriter, r *http.Request) {
	var req OffsetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	// UTC-14:00 to UTC+14:00
	if req.Minutes < -14*60 || req.Minutes > 14*60 {
		httputil.WriteJSONError(w, "offset out of range", http.StatusBadRequest)
		return
	}

	if err := a.goals.SetOffset(r.Context(), chi.URLParam(r, "user"), req.Minutes); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
