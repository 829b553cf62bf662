// Package logger provides opinionated logging capabilities for branchmem
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level    slog.Level
	levelVar *slog.LevelVar
	pretty   bool
	json     bool
	source   bool
	writers  []io.Writer
}

// New creates a *slog.Logger. Text output is the default; WithPretty selects
// the charmbracelet/log handler and WithJSON selects slog's JSON handler.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	leveler := slog.Leveler(c.level)
	if c.levelVar != nil {
		c.levelVar.Set(c.level)
		leveler = c.levelVar
	}

	switch {
	case c.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     leveler,
			AddSource: c.source,
		}))
	case c.pretty:
		cl := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.DebugLevel,
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
		return slog.New(&levelHandler{leveler: leveler, next: cl})
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     leveler,
			AddSource: c.source,
		}))
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// levelHandler gates a handler on a slog.Leveler so the charm handler follows
// runtime level changes.
type levelHandler struct {
	leveler slog.Leveler
	next    slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.leveler.Level() && h.next.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{leveler: h.leveler, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{leveler: h.leveler, next: h.next.WithGroup(name)}
}
