package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-ID"

// errorMiddleware turns handler errors and panics into SemanticResponse
// bodies. 5xx failures are logged with their cause.
func errorMiddleware(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", zap.String("path", c.Path()), zap.Any("panic", r))
				err = write(c, fiber.StatusInternalServerError, "", nil)
			}
		}()

		err = c.Next()
		if err == nil {
			return nil
		}

		status, msg, data := normalizeError(err)
		if status >= 500 {
			log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
		}
		return write(c, status, msg, data)
	}
}

func accessLog(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(headerRequestID, rid)

		err := c.Next()

		log.Info("http access",
			zap.String("rid", rid),
			zap.String("ip", c.IP()),
			zap.String("method", c.Method()),
			zap.String("path", c.OriginalURL()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ua", c.Get(fiber.HeaderUserAgent)),
		)
		return err
	}
}

func badRequest(err error) error {
	return NewAppError(fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), nil, err)
}
