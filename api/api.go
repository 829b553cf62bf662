package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/branchmem/api/mcp"
	"github.com/papercomputeco/branchmem/pkg/convmem"
)

// Server is the API server for resolving and managing conversation memory
type Server struct {
	config Config
	svc    *convmem.Service
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The memory service is injected so the storage driver and event publisher
// can be shared with other components.
func NewServer(config Config, svc *convmem.Service, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("memory service is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	// Route params and headers become storage keys that outlive the request,
	// so fiber must not hand out views into its reused buffers.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	s := &Server{
		config: config,
		svc:    svc,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	sessions := app.Group("/sessions/:session")
	sessions.Post("/messages", s.handleAppendMessage)
	sessions.Get("/path", s.handleActivePath)

	nodes := sessions.Group("/nodes/:node")
	nodes.Post("/session", s.handleEnsureSession)
	nodes.Get("/memory", s.handleGetMemory)
	nodes.Delete("/memory", s.handleClearMemory)
	nodes.Post("/memory/human", s.handleAddHuman)
	nodes.Post("/memory/ai", s.handleAddAI)
	nodes.Post("/memory/tool", s.handleAddTool)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Service: svc,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
