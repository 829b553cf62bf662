package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/branchmem/pkg/convmem"
	"github.com/papercomputeco/branchmem/pkg/history"
	"github.com/papercomputeco/branchmem/pkg/session"
	"github.com/papercomputeco/branchmem/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// logged and reported with a generic message.
func (s *Server) writeError(c *fiber.Ctx, op string, err error) error {
	status := fiber.StatusInternalServerError
	msg := "failed to " + op

	switch {
	case convmem.IsAuthorization(err), errors.Is(err, session.ErrOwnerMismatch):
		status = fiber.StatusForbidden
		msg = err.Error()
	case convmem.IsConfiguration(err):
		status = fiber.StatusBadRequest
		msg = err.Error()
	case history.IsStructural(err), errors.Is(err, storage.ErrAlreadyExists):
		status = fiber.StatusConflict
		msg = err.Error()
	case storage.IsNotFound(err):
		status = fiber.StatusNotFound
		msg = err.Error()
	default:
		s.logger.Error("request failed",
			"op", op,
			"path", c.Path(),
			"error", err,
		)
	}

	return c.Status(status).JSON(ErrorResponse{Error: msg})
}
