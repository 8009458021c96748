package handler

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/jaskirat05/graviton-bridge/pkg/bridgecfg"
	"github.com/jaskirat05/graviton-bridge/pkg/controlauth"
)

// GetConfig returns the effective bridge configuration with secrets masked.
func (h *BridgeHandler) GetConfig(ctx context.Context, c *app.RequestContext) {
	effective := h.configStore.Effective()
	c.JSON(consts.StatusOK, map[string]any{
		"config": bridgecfg.Redact(effective),
	})
}

// ControlStatus reports the worker identity and control-plane state.
func (h *BridgeHandler) ControlStatus(ctx context.Context, c *app.RequestContext) {
	effective := h.configStore.Effective()
	c.JSON(consts.StatusOK, map[string]any{
		"worker_id":            controlauth.WorkerID(h.workerIDPath),
		"control_auth_enabled": h.verifier.Enabled(),
		"config":               bridgecfg.Redact(effective),
	})
}

// PostConfig applies a configuration patch. Control-plane authentication
// runs in middleware before this handler; here the body is already trusted.
// The patch accepts either {"config": {...}} or a bare config object and
// must carry a mode.
func (h *BridgeHandler) PostConfig(ctx context.Context, c *app.RequestContext) {
	body := c.Request.Body()

	var envelope struct {
		Config json.RawMessage `json:"config"`
	}
	raw := body
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeBadRequest(c, "Invalid JSON body")
		return
	}
	if len(envelope.Config) > 0 {
		raw = envelope.Config
	}

	patch, err := bridgecfg.DecodePatch(raw)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	if patch.Mode == nil {
		writeBadRequest(c, "mode is required")
		return
	}

	saved, err := h.configStore.ApplyPatch(patch)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	hlog.CtxInfof(ctx, "bridge config updated, mode=%s", saved.Mode)

	c.JSON(consts.StatusOK, map[string]any{
		"ok":               true,
		"worker_id":        controlauth.WorkerID(h.workerIDPath),
		"saved_config":     bridgecfg.Redact(saved),
		"effective_config": bridgecfg.Redact(h.configStore.Effective()),
	})
}
