// Package session lazily creates conversation session rows.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/logger"
	"github.com/papercomputeco/branchmem/pkg/storage"
)

// ErrOwnerMismatch is returned when the session exists under another owner.
var ErrOwnerMismatch = errors.New("session belongs to a different owner")

// Params describes the session to ensure.
type Params struct {
	SessionID  string
	OwnerID    string
	Title      string
	WorkflowID *string
	AgentName  string
}

// Ensurer performs an idempotent get-or-create of session rows.
type Ensurer struct {
	store  chat.SessionStore
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Ensurer.
type Option func(*Ensurer)

// WithClock overrides the timestamp source used for new sessions.
func WithClock(now func() time.Time) Option {
	return func(e *Ensurer) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Ensurer) {
		e.logger = l
	}
}

// NewEnsurer creates an Ensurer over the given session store.
func NewEnsurer(store chat.SessionStore, opts ...Option) *Ensurer {
	e := &Ensurer{
		store:  store,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ensure creates the session if it does not exist yet.
//
// Two callers may race between the existence check and the insert (for
// example two memory nodes of one workflow); the loser's duplicate-key
// failure is treated as success after re-checking ownership.
func (e *Ensurer) Ensure(ctx context.Context, p Params) error {
	if p.SessionID == "" {
		return errors.New("session id is required")
	}
	if p.OwnerID == "" {
		return errors.New("owner id is required")
	}

	existing, err := e.store.GetSession(ctx, p.SessionID)
	switch {
	case err == nil:
		return checkOwner(existing, p.OwnerID)
	case !storage.IsNotFound(err):
		return fmt.Errorf("checking session %s: %w", p.SessionID, err)
	}

	err = e.store.CreateSession(ctx, &chat.Session{
		ID:            p.SessionID,
		OwnerID:       p.OwnerID,
		Title:         p.Title,
		LastMessageAt: e.now().UTC(),
		WorkflowID:    p.WorkflowID,
		AgentName:     p.AgentName,
	})
	if err == nil {
		e.logger.Debug("session created",
			"session_id", p.SessionID,
			"agent_name", p.AgentName,
		)
		return nil
	}

	if !errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("creating session %s: %w", p.SessionID, err)
	}

	e.logger.Debug("session created concurrently", "session_id", p.SessionID)

	existing, err = e.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return fmt.Errorf("re-reading session %s: %w", p.SessionID, err)
	}
	return checkOwner(existing, p.OwnerID)
}

func checkOwner(s *chat.Session, ownerID string) error {
	if s.OwnerID != ownerID {
		return fmt.Errorf("session %s: %w", s.ID, ErrOwnerMismatch)
	}
	return nil
}
