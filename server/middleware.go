package server

import (
	"errors"
	"strconv"

	"github.com/K3das/qin-bridge/metrics"
	"github.com/K3das/qin-bridge/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// requestContext tags the request with an id, carries it into the handler's
// log context and counts the response once the error handler has run.
func (s *Server) requestContext(c *fiber.Ctx) error {
	id := c.Get(requestIDHeader)
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	c.Set(requestIDHeader, id)

	ctx := utils.WithRequestID(c.UserContext(), id)
	ctx = utils.LogContext(ctx, zap.String("method", c.Method()), zap.String("path", c.Path()))
	c.SetUserContext(ctx)

	err := c.Next()
	if err != nil {
		if handlerErr := c.App().Config().ErrorHandler(c, err); handlerErr != nil {
			utils.GetLogFromContext(ctx, s.log).Error("error handler failed", zap.Error(handlerErr))
			c.Status(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	route := c.Route().Path
	if status == fiber.StatusNotFound {
		route = "unmatched"
	}
	metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()

	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	if code >= fiber.StatusInternalServerError {
		utils.GetLogFromContext(c.UserContext(), s.log).Error("internal server error", zap.Error(err))
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (s *Server) logPanic(c *fiber.Ctx, e interface{}) {
	utils.GetLogFromContext(c.UserContext(), s.log).Error("recovered panic", zap.Any("panic", e))
}
