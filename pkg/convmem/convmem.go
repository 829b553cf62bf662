// Package convmem is the conversation memory service: it resolves the active
// path of a branching chat session and scopes a memory node's entries to the
// turns on that path.
//
// A consumer acquires a [Handle] per execution with [Service.Acquire]. The
// handle reads memory filtered by the correlation ids of the active path and
// tags every write with the execution's own correlation key.
package convmem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/branchmem/pkg/eventstream"
	"github.com/papercomputeco/branchmem/pkg/eventstream/nop"
	"github.com/papercomputeco/branchmem/pkg/history"
	"github.com/papercomputeco/branchmem/pkg/logger"
	"github.com/papercomputeco/branchmem/pkg/session"
	"github.com/papercomputeco/branchmem/pkg/storage"
)

// Config configures a Service.
type Config struct {
	// Store is the persistence driver. Required.
	Store storage.Driver

	// Scheme selects the correlation scheme. Empty selects history.SchemeTurn.
	Scheme history.Scheme

	// Enabled gates Acquire. A disabled service returns ErrUnavailable.
	Enabled bool

	// Publisher receives memory events. Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// Clock and NewID default to time.Now and uuid.NewString.
	Clock func() time.Time
	NewID func() string
}

// Service hands out memory handles.
type Service struct {
	store     storage.Driver
	scheme    history.Scheme
	enabled   atomic.Bool
	publisher eventstream.Publisher
	ensurer   *session.Ensurer
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
}

// NewService creates a Service from cfg.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("convmem: store is required")
	}

	scheme, err := history.ParseScheme(string(cfg.Scheme))
	if err != nil {
		return nil, fmt.Errorf("convmem: %w", err)
	}

	s := &Service{
		store:     cfg.Store,
		scheme:    scheme,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
	}
	if s.publisher == nil {
		s.publisher = nop.NewPublisher()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.enabled.Store(cfg.Enabled)
	s.ensurer = session.NewEnsurer(cfg.Store,
		session.WithClock(s.clock),
		session.WithLogger(s.logger),
	)

	return s, nil
}

// Scheme returns the configured correlation scheme.
func (s *Service) Scheme() history.Scheme {
	return s.scheme
}

// Enabled reports whether Acquire hands out handles.
func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled toggles the module at runtime. Handles already acquired keep
// working.
func (s *Service) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Acquire validates the request and returns a handle bound to it.
func (s *Service) Acquire(_ context.Context, req Request) (*Handle, error) {
	if !s.enabled.Load() {
		return nil, ErrUnavailable
	}

	if err := req.validate(); err != nil {
		s.logger.Warn("memory handle refused",
			"node_type", req.Node.Type,
			"session_id", req.SessionID,
			"error", err,
		)
		return nil, err
	}

	return &Handle{
		svc: s,
		req: req,
		turn: &TurnContext{
			Scheme:     s.scheme,
			HeadID:     req.HeadMessageID,
			TurnHint:   req.TurnID,
			Regenerate: req.Regenerate,
		},
		logger: s.logger.With(
			"session_id", req.SessionID,
			"memory_node_id", req.MemoryNodeID,
		),
	}, nil
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, event *eventstream.MemoryEvent) {
	if err := s.publisher.PublishMemory(ctx, event); err != nil {
		log.Error("publishing memory event",
			"event_type", event.EventType,
			"error", err,
		)
	}
}
