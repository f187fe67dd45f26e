package api

import (
	"context"
	"net/http"

	"rollcall/internal/dto/req"
	"rollcall/internal/dto/resp"
	"rollcall/internal/service"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PendingProvider interface {
	List(ctx context.Context) (*v1.PendingList, error)
	Delete(ctx context.Context, id int64) error
	DeleteGroup(ctx context.Context, key string) (int, error)
	DeleteDuplicates(ctx context.Context) (int, error)
}

type PendingHandler struct {
	service PendingProvider
}

func NewPendingHandler(service PendingProvider) *PendingHandler {
	return &PendingHandler{service: service}
}

func (h *PendingHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *PendingHandler) Delete(c *gin.Context) {
	var uri req.IDUri
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid id"})
		return
	}
	if err := h.service.Delete(c.Request.Context(), uri.ID); err != nil {
		writeError(c, err)
		return
	}
	logger.Info("pending entry cancelled",
		zap.Int64("id", uri.ID),
		zap.String("actor", service.ActorName(c.Request.Context())),
	)
	c.JSON(http.StatusOK, resp.DeleteResponse{Deleted: 1})
}

func (h *PendingHandler) DeleteGroup(c *gin.Context) {
	var uri req.GroupUri
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid group key"})
		return
	}
	n, err := h.service.DeleteGroup(c.Request.Context(), uri.Key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.DeleteResponse{Deleted: n})
}

func (h *PendingHandler) Dedupe(c *gin.Context) {
	n, err := h.service.DeleteDuplicates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.DeleteResponse{Deleted: n})
}
