// Package notify carries channel announcements out of the sprint service.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type Announcement struct {
	Guild   string `json:"guild"`
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// Notifier delivers a message to a guild channel. Delivery failures are
// reported but never undo the state change that produced the message.
type Notifier interface {
	Say(ctx context.Context, a Announcement) error
}

type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Say(ctx context.Context, a Announcement) error {
	l.logger.Info("announcement",
		zap.String("guild", a.Guild),
		zap.String("channel", a.Channel),
		zap.String("message", a.Message),
	)
	return nil
}

// Recorder keeps every announcement in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Announcement
	Err  error
}

func (r *Recorder) Say(ctx context.Context, a Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, a)
	return nil
}

func (r *Recorder) Sent() []Announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Announcement(nil), r.sent...)
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]string, len(r.sent))
	for i, a := range r.sent {
		msgs[i] = a.Message
	}
	return msgs
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// Multi fans an announcement out to every notifier and returns the first
// error seen.
type Multi []Notifier

func (m Multi) Say(ctx context.Context, a Announcement) error {
	var first error
	for _, n := range m {
		if err := n.Say(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
