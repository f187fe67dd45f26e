package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// ErrOffline is returned without touching the wire when the agent knows it is offline.
var ErrOffline = errors.New("network offline")

// NetworkError is a transport-level failure: the remote service never answered.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a structured rejection from the remote service.
type APIError struct {
	Status  int
	Message string
	Body    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote rejected request (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote rejected request (%d)", e.Status)
}

// IsNetworkError reports whether err is transient and worth retrying on the next run.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, ErrOffline) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
