package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/jaskirat05/graviton-bridge/pkg/assetref"
	"github.com/jaskirat05/graviton-bridge/pkg/provider"
)

// ListAssets returns every asset the active backend can enumerate.
func (h *BridgeHandler) ListAssets(ctx context.Context, c *app.RequestContext) {
	p, err := h.activeProvider()
	if err != nil {
		writeInternalError(c, err)
		return
	}
	assets, err := p.ListAssets(ctx)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{
		"count":  len(assets),
		"assets": assets,
	})
}

// GetAssetMeta returns the stored AssetRef for one asset.
func (h *BridgeHandler) GetAssetMeta(ctx context.Context, c *app.RequestContext) {
	assetID := c.Param("asset_id")
	p, err := h.activeProvider()
	if err != nil {
		writeInternalError(c, err)
		return
	}
	meta, err := p.GetMeta(ctx, assetID)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	if meta == nil {
		writeNotFound(c, "Asset not found")
		return
	}
	c.JSON(consts.StatusOK, meta)
}

// DownloadAsset serves the asset payload as an attachment. The payload is
// materialized into the backend's local cache first, then streamed from disk.
func (h *BridgeHandler) DownloadAsset(ctx context.Context, c *app.RequestContext) {
	assetID := c.Param("asset_id")
	p, err := h.activeProvider()
	if err != nil {
		writeInternalError(c, err)
		return
	}
	meta, err := p.GetMeta(ctx, assetID)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	if meta == nil {
		writeNotFound(c, "Asset not found")
		return
	}

	path, err := p.ResolveLocalPath(ctx, assetID)
	if err != nil {
		if errors.Is(err, provider.ErrPayloadMissing) || errors.Is(err, provider.ErrNotFound) {
			writeNotFound(c, "Asset payload missing")
			return
		}
		writeInternalError(c, err)
		return
	}
	if path == "" {
		writeNotFound(c, "Asset payload missing")
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	filename := meta.Filename
	if filename == "" {
		filename = filepath.Base(path)
	}
	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = consts.MIMEApplicationOctetStream
	}
	c.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(consts.StatusOK, mimeType, content)
}

// UploadAsset stores a multipart payload through the active backend and
// records the resulting ref in the local ledger.
func (h *BridgeHandler) UploadAsset(ctx context.Context, c *app.RequestContext) {
	kind := strings.TrimSpace(c.Query("kind"))
	if kind == "" {
		kind = assetref.KindFile
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeBadRequest(c, "Expected multipart/form-data with field 'file'")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	if len(payload) == 0 {
		writeBadRequest(c, "Uploaded file is empty")
		return
	}

	filename := strings.TrimSpace(fileHeader.Filename)
	if filename == "" {
		filename = "upload.bin"
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = provider.MimeForFilename(filename)
	}

	if h.upload != nil {
		if err := h.upload.Validate(int64(len(payload)), mimeType); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
	}

	p, err := h.activeProvider()
	if err != nil {
		writeInternalError(c, err)
		return
	}
	ref, err := p.PutBytes(ctx, provider.PutInput{
		Payload:  payload,
		Filename: filename,
		Kind:     kind,
		MimeType: mimeType,
	})
	if err != nil {
		writeInternalError(c, err)
		return
	}

	if h.ledger != nil {
		if err := h.ledger.Record(ctx, ref); err != nil {
			// History is best effort; the asset itself is already stored.
			hlog.CtxWarnf(ctx, "ledger record failed for %s: %v", ref.AssetID, err)
		}
	}

	c.JSON(consts.StatusOK, map[string]any{
		"ok":    true,
		"asset": ref,
	})
}

// ListLedger returns the locally recorded upload history, newest first.
func (h *BridgeHandler) ListLedger(ctx context.Context, c *app.RequestContext) {
	if h.ledger == nil {
		c.JSON(consts.StatusOK, map[string]any{"count": 0, "assets": []*assetref.AssetRef{}})
		return
	}
	refs, err := h.ledger.List(ctx)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{
		"count":  len(refs),
		"assets": refs,
	})
}
