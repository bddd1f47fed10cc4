// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers user-facing notices about quest activity.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// Level is a notice's severity.
type Level int

// Levels.
const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice kinds.
const (
	KindQuestCreated       = "questCreated"
	KindQuestUpdated       = "questUpdated"
	KindQuestDeleted       = "questDeleted"
	KindQuestStatusChanged = "questStatusChanged"
	KindQuestCompleted     = "questCompleted"
	KindQuestUnlocked      = "questUnlocked"
	KindRewardsDistributed = "rewardsDistributed"
	KindPermissions        = "permissions"
	KindFailure            = "failure"
)

// Notice is one message for the user.
type Notice struct {
	Level   Level
	Kind    string
	QuestID string
	Message string
}

// Notifier receives notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Logger forwards notices to a slog.Logger.
type Logger struct {
	Log *slog.Logger
}

// Notify implements Notifier.
func (l Logger) Notify(ctx context.Context, n Notice) {
	logger := l.Log
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Message, "kind", n.Kind, "quest_id", n.QuestID)
}

// Writer prints notices as lines, for terminals.
type Writer struct {
	mu   sync.Mutex
	w    io.Writer
	warn *color.Color
	fail *color.Color
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithColor highlights the warning and error prefixes.
func WithColor(enabled bool) WriterOption {
	return func(w *Writer) {
		if enabled {
			w.warn.EnableColor()
			w.fail.EnableColor()
		}
	}
}

// NewWriter creates a Writer printing to w. Output is plain unless
// WithColor(true) is given.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{
		w:    w,
		warn: color.New(color.FgYellow, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
	}
	wr.warn.DisableColor()
	wr.fail.DisableColor()
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Notify implements Notifier.
func (w *Writer) Notify(_ context.Context, n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := ""
	switch n.Level {
	case LevelWarn:
		prefix = w.warn.Sprint("warning:") + " "
	case LevelError:
		prefix = w.fail.Sprint("error:") + " "
	}
	//nolint:errcheck // best effort
	fmt.Fprintf(w.w, "%s%s\n", prefix, n.Message)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}

// Recorder keeps every notice. Use it in tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of everything recorded.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice, if any.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

// Kinds lists the kinds of every recorded notice, in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Kind
	}
	return out
}

// Discard drops every notice.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Notice) {}
