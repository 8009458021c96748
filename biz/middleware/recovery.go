package middleware

import (
	"context"
	"runtime/debug"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Recovery returns a middleware that recovers from handler panics, logs the
// stack, and converts the panic into a generic error response.
func Recovery() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				hlog.CtxErrorf(ctx, "panic recovered: %v\n%s", err, debug.Stack())
				c.JSON(consts.StatusInternalServerError, map[string]any{
					"error": "internal server error",
				})
				c.Abort()
			}
		}()

		c.Next(ctx)
	}
}
