package api

import (
	"context"
	"net/http"

	"rollcall/internal/dto/req"
	"rollcall/internal/dto/resp"
	"rollcall/internal/service"
	v1 "rollcall/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

type SaveProvider interface {
	Save(ctx context.Context, p v1.AttendancePayload) (*v1.SaveResult, error)
}

type ProjectionProvider interface {
	Get(ctx context.Context, classID int64) (*service.Projection, error)
}

type AttendanceHandler struct {
	gateway     SaveProvider
	projections ProjectionProvider
}

func NewAttendanceHandler(gateway SaveProvider, projections ProjectionProvider) *AttendanceHandler {
	return &AttendanceHandler{gateway: gateway, projections: projections}
}

func (h *AttendanceHandler) Save(c *gin.Context) {
	var r req.SaveAttendanceRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid attendance payload", Details: err.Error()})
		return
	}

	res, err := h.gateway.Save(c.Request.Context(), r.ToPayload())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if res.Offline {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

func (h *AttendanceHandler) ClassAttendance(c *gin.Context) {
	var uri req.IDUri
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid class id"})
		return
	}
	p, err := h.projections.Get(c.Request.Context(), uri.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
