// Package notify carries user-visible outcome messages for visibility
// changes to whatever displays or records them.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/koustreak/bucketvis/internal/logger"
)

// Level tells the presentation layer how to render a message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is one outcome of a mutation attempt.
type Message struct {
	Time      time.Time `json:"time"`
	Level     Level     `json:"level"`
	Operation string    `json:"operation"`
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path,omitempty"`
	Text      string    `json:"text"`
}

// Sink receives outcome messages.
type Sink interface {
	Notify(ctx context.Context, m Message) error
}

// Reader is implemented by sinks that can replay recent messages.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Message, error)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, Message) error { return nil }

// LogSink writes messages to a logger.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(l *logger.Logger) *LogSink {
	return &LogSink{log: l.Component("notify")}
}

func (s *LogSink) Notify(_ context.Context, m Message) error {
	fields := map[string]any{
		"operation": m.Operation,
		"bucket":    m.Bucket,
		"path":      m.Path,
		"level":     string(m.Level),
	}
	if m.Level == LevelError {
		s.log.WarnWith(m.Text, nil, fields)
		return nil
	}
	s.log.InfoWith(m.Text, fields)
	return nil
}

// Memory keeps the last Capacity messages in process.
type Memory struct {
	Capacity int

	mu   sync.Mutex
	msgs []Message
}

func NewMemory(capacity int) *Memory {
	return &Memory{Capacity: capacity}
}

func (s *Memory) Notify(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, m)
	if s.Capacity > 0 && len(s.msgs) > s.Capacity {
		s.msgs = s.msgs[len(s.msgs)-s.Capacity:]
	}
	return nil
}

// Recent returns up to limit messages, newest first.
func (s *Memory) Recent(_ context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.msgs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Message, 0, n)
	for i := len(s.msgs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.msgs[i])
	}
	return out, nil
}

// Multi fans a message out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var all []error
	for _, s := range m {
		if err := s.Notify(ctx, msg); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

// Recent delegates to the first sink that can replay messages.
func (m Multi) Recent(ctx context.Context, limit int) ([]Message, error) {
	for _, s := range m {
		if r, ok := s.(Reader); ok {
			return r.Recent(ctx, limit)
		}
	}
	return []Message{}, nil
}
