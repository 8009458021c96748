package middleware

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"

	"github.com/jaskirat05/graviton-bridge/pkg/controlauth"
)

// ControlAuth returns a middleware enforcing signed control-plane requests.
// It verifies the X-Graviton-* headers against the raw request body before
// any mutation handler runs.
func ControlAuth(verifier *controlauth.Verifier) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		err := verifier.Verify(controlauth.Request{
			Method:    string(c.Request.Method()),
			Path:      string(c.Request.URI().Path()),
			Timestamp: string(c.GetHeader(controlauth.HeaderTimestamp)),
			Nonce:     string(c.GetHeader(controlauth.HeaderNonce)),
			Signature: string(c.GetHeader(controlauth.HeaderSignature)),
			Body:      c.Request.Body(),
		})
		if err != nil {
			var authErr *controlauth.Error
			status := 401
			reason := "unauthorized"
			if errors.As(err, &authErr) {
				status = authErr.Status
				reason = authErr.Reason
			}
			hlog.CtxWarnf(ctx, "control auth rejected %s %s: %s",
				c.Request.Method(), c.Request.URI().Path(), reason)
			c.JSON(status, map[string]any{
				"code":  status,
				"error": reason,
			})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}
