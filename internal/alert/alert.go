// Package alert notifies operators when a scheduled task keeps failing.
// Alerts are informational only and never change how the scheduler
// retries a task.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type Failure struct {
	Task    string
	TaskID  int64
	Err     error
	At      time.Time
	Attempt int
}

type Alerter interface {
	TaskFailed(ctx context.Context, f Failure)
}

type Nop struct{}

func (Nop) TaskFailed(context.Context, Failure) {}

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type EmailConfig struct {
	APIKey   string
	FromName string
	From     string
	To       string
	Cooldown time.Duration
}

// Email sends one message per task key per cooldown window.
type Email struct {
	client   sender
	from     *mail.Email
	to       *mail.Email
	cooldown time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

func NewEmail(cfg EmailConfig, logger *zap.Logger) *Email {
	return newEmail(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newEmail(client sender, cfg EmailConfig, logger *zap.Logger) *Email {
	return &Email{
		client:   client,
		from:     mail.NewEmail(cfg.FromName, cfg.From),
		to:       mail.NewEmail("", cfg.To),
		cooldown: cfg.Cooldown,
		logger:   logger,
		last:     make(map[string]time.Time),
	}
}

func (e *Email) allow(key string, at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.last[key]; ok && at.Sub(last) < e.cooldown {
		return false
	}
	e.last[key] = at
	return true
}

func (e *Email) TaskFailed(ctx context.Context, f Failure) {
	if !e.allow(f.Task, f.At) {
		return
	}

	subject := fmt.Sprintf("wordsprint: task %s failing", f.Task)
	body := fmt.Sprintf("Task %s (id %d) failed at %s on attempt %d and will be retried on the next poll.\n\nError: %v",
		f.Task, f.TaskID, f.At.UTC().Format(time.RFC3339), f.Attempt, f.Err)

	email := mail.NewSingleEmail(e.from, subject, e.to, body, body)
	response, err := e.client.SendWithContext(ctx, email)
	if err != nil {
		e.logger.Warn("failed to send alert email", zap.String("task", f.Task), zap.Error(err))
		return
	}
	if response.StatusCode >= 400 {
		e.logger.Warn("sendgrid rejected alert email",
			zap.String("task", f.Task),
			zap.Int("status", response.StatusCode),
		)
		return
	}

	e.logger.Info("alert email sent", zap.String("task", f.Task), zap.Int("status", response.StatusCode))
}
