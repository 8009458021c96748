package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ListTemplates enumerates the whitelisted template files.
func (h *BridgeHandler) ListTemplates(ctx context.Context, c *app.RequestContext) {
	files, err := h.templates.List()
	if err != nil {
		writeInternalError(c, err)
		return
	}
	absDir, err := filepath.Abs(h.templates.Dir())
	if err != nil {
		absDir = h.templates.Dir()
	}
	c.JSON(consts.StatusOK, map[string]any{
		"path":  absDir,
		"count": len(files),
		"files": files,
	})
}

// DownloadTemplate serves one template file as an attachment.
func (h *BridgeHandler) DownloadTemplate(ctx context.Context, c *app.RequestContext) {
	name := c.Param("filename")
	content, err := h.templates.Read(name)
	if err != nil {
		if os.IsNotExist(err) {
			writeNotFound(c, "Template file not found")
			return
		}
		writeBadRequest(c, "Invalid filename")
		return
	}
	path, _ := h.templates.Path(name)
	c.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	c.Data(consts.StatusOK, "application/octet-stream", content)
}

// UploadTemplate stores a template from either a multipart 'file' field or
// a JSON body {"filename": ..., "content": ...}.
func (h *BridgeHandler) UploadTemplate(ctx context.Context, c *app.RequestContext) {
	var (
		filename string
		content  []byte
	)

	contentType := string(c.ContentType())
	if strings.HasPrefix(contentType, "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeBadRequest(c, "Expected multipart field named 'file'")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		defer file.Close()
		content, err = io.ReadAll(file)
		if err != nil {
			writeInternalError(c, err)
			return
		}
		filename = fileHeader.Filename
	} else {
		var payload struct {
			Filename string  `json:"filename"`
			Content  *string `json:"content"`
		}
		if err := json.Unmarshal(c.Request.Body(), &payload); err != nil {
			writeBadRequest(c, "Invalid request body")
			return
		}
		if payload.Content == nil {
			writeBadRequest(c, "JSON body must include string field 'content'")
			return
		}
		filename = payload.Filename
		content = []byte(*payload.Content)
	}

	info, err := h.templates.Write(filename, content)
	if err != nil {
		writeBadRequest(c, "Invalid filename. Allowed extensions: .json, .flow")
		return
	}
	path, _ := h.templates.Path(info.Filename)
	c.JSON(consts.StatusOK, map[string]any{
		"ok":         true,
		"filename":   info.Filename,
		"path":       path,
		"size_bytes": info.SizeBytes,
	})
}
