package handler

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

func writeBadRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, map[string]any{"error": msg})
}

func writeNotFound(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusNotFound, map[string]any{"error": msg})
}

func writeInternalError(c *app.RequestContext, err error) {
	c.JSON(consts.StatusInternalServerError, map[string]any{"error": err.Error()})
}
