package api

import (
	"context"
	"net/http"

	"rollcall/internal/dto/req"
	"rollcall/internal/dto/resp"
	v1 "rollcall/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

type SyncProvider interface {
	SyncNow(ctx context.Context) (v1.SyncResult, error)
	RetryAll(ctx context.Context) error
}

// NetworkHook is the platform side of the connectivity signal.
type NetworkHook interface {
	Status() bool
	Set(online bool)
}

type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

type SyncHandler struct {
	sync    SyncProvider
	network NetworkHook
	queue   PendingCounter
}

func NewSyncHandler(sync SyncProvider, network NetworkHook, queue PendingCounter) *SyncHandler {
	return &SyncHandler{sync: sync, network: network, queue: queue}
}

func (h *SyncHandler) SyncNow(c *gin.Context) {
	res, err := h.sync.SyncNow(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RetryAll clears the failed set and starts a run right away.
func (h *SyncHandler) RetryAll(c *gin.Context) {
	if err := h.sync.RetryAll(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.SyncNow(c)
}

func (h *SyncHandler) GetNetwork(c *gin.Context) {
	c.JSON(http.StatusOK, resp.NetworkResponse{Online: h.network.Status()})
}

func (h *SyncHandler) SetNetwork(c *gin.Context) {
	var r req.SetNetworkRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "online flag required"})
		return
	}
	h.network.Set(*r.Online)
	c.JSON(http.StatusOK, resp.NetworkResponse{Online: h.network.Status()})
}

func (h *SyncHandler) HealthCheck(c *gin.Context) {
	n, err := h.queue.CountPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, resp.HealthResponse{Status: "store unavailable", Online: h.network.Status()})
		return
	}
	c.JSON(http.StatusOK, resp.HealthResponse{Status: "ok", Online: h.network.Status(), Pending: n})
}
