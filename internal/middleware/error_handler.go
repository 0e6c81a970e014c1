package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const errorLogSize = 50

// NewErrorHandler is the global fiber error handler. Server errors are also pushed to the redis
// error log shown by /health/errors; rdb may be nil.
func NewErrorHandler(rdb *redis.Client) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			if fe.Code >= fiber.StatusInternalServerError {
				recordError(rdb, c, fe.Message)
			}
			return response.Error(c, fe.Message, fe.Code, nil)
		}
		if _, ok := apperr.As(err); !ok || response.StatusFor(apperr.KindOf(err)) >= fiber.StatusInternalServerError {
			recordError(rdb, c, err.Error())
		}
		return response.FromError(c, err)
	}
}

func recordError(rdb *redis.Client, c *fiber.Ctx, message string) {
	if rdb == nil {
		return
	}
	b, _ := json.Marshal(map[string]interface{}{
		"time":     time.Now().UTC(),
		"path":     c.OriginalURL(),
		"method":   c.Method(),
		"message":  message,
		"trace_id": GetTraceID(c),
	})
	ctx := context.Background()
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, KeyErrorLog, b)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	_, _ = pipe.Exec(ctx)
}
