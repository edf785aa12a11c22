package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/talent-radar/internal/matching"
	"github.com/spigell/talent-radar/internal/ranker"
	"github.com/spigell/talent-radar/internal/signals"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func success(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(successResponse{Success: true, Message: message, Data: data})
}

// errorHandler renders every failed request in the same envelope. Domain errors
// map to client statuses; anything else is a 500 with the detail hidden.
func errorHandler(c *fiber.Ctx, err error) error {
	code, message := statusOf(err)
	resp := errorResponse{Message: message}
	if code < fiber.StatusInternalServerError && message != err.Error() {
		resp.Error = err.Error()
	}
	return c.Status(code).JSON(resp)
}

func statusOf(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, matching.ErrProfileIncomplete):
		return fiber.StatusConflict, matching.ErrProfileIncomplete.Error()
	case errors.Is(err, vectorindex.ErrInvalidInput),
		errors.Is(err, signals.ErrInvalidInput),
		errors.Is(err, ranker.ErrInvalidConfig):
		return fiber.StatusBadRequest, "invalid request"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "request timed out"
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}
