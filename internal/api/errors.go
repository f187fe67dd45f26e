package api

import (
	"errors"
	"net/http"

	"rollcall/internal/dto/resp"
	"rollcall/internal/remote"
	"rollcall/internal/repository"
	"rollcall/internal/service"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var apiErr *remote.APIError
	switch {
	case errors.Is(err, service.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: err.Error()})
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		c.JSON(status, resp.ErrorResponse{Error: apiErr.Message, Details: apiErr.Body})
	case errors.Is(err, repository.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, resp.ErrorResponse{Error: "local store unavailable"})
	case errors.Is(err, service.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, resp.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrProjectionUnavailable):
		c.JSON(http.StatusServiceUnavailable, resp.ErrorResponse{Error: err.Error()})
	case remote.IsNetworkError(err):
		c.JSON(http.StatusBadGateway, resp.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, resp.ErrorResponse{Error: err.Error()})
	}
}
