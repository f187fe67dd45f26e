package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/config"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

const (
	maxBody      = 4 << 20
	maxErrorBody = 64 << 10
)

// Client talks to the remote attendance API.
type Client struct {
	baseURL           string
	token             string
	submitTimeout     time.Duration
	resolutionTimeout time.Duration
	reportTimeout     time.Duration
	httpClient        *http.Client
}

func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		token:             cfg.Token,
		submitTimeout:     orDefault(cfg.SubmitTimeout, 90*time.Second),
		resolutionTimeout: orDefault(cfg.ResolutionTimeout, 10*time.Second),
		reportTimeout:     orDefault(cfg.ReportTimeout, 10*time.Second),
		// per-call timeouts come from the request context
		httpClient: &http.Client{Timeout: 0},
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// SaveAttendance submits one attendance payload and returns the remote envelope verbatim.
func (c *Client) SaveAttendance(ctx context.Context, p v1.AttendancePayload) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode attendance: %w", err)
	}
	return c.do(ctx, "save attendance", http.MethodPost, "/api/attendance/save", body)
}

// FetchClassAttendance returns the remote attendance view for a class.
func (c *Client) FetchClassAttendance(ctx context.Context, classID int64) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.resolutionTimeout)
	defer cancel()
	return c.do(ctx, "fetch class attendance", http.MethodGet,
		"/api/attendance/class/"+strconv.FormatInt(classID, 10), nil)
}

// Report posts a replay failure to the remote error log.
func (c *Client) Report(ctx context.Context, rec v1.ErrorLogRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.reportTimeout)
	defer cancel()

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error log: %w", err)
	}
	_, err = c.do(ctx, "report error", http.MethodPost, "/api/attendance/error-logs", body)
	return err
}

// ResolvedIDs returns submission ids an administrator marked resolved since the
// given time (ms, 0 for all). Failures are logged and yield an empty list.
func (c *Client) ResolvedIDs(ctx context.Context, since int64) []int64 {
	ids, err := c.FetchResolved(ctx, since)
	if err != nil {
		logger.Warn("failed to fetch resolved submissions", zap.Error(err))
		return []int64{}
	}
	return ids
}

// FetchResolved is ResolvedIDs with the error kept, for callers that track a cursor.
func (c *Client) FetchResolved(ctx context.Context, since int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.resolutionTimeout)
	defer cancel()

	path := "/api/attendance/error-logs/resolved"
	if since > 0 {
		path += "?" + url.Values{"since": {strconv.FormatInt(since, 10)}}.Encode()
	}
	raw, err := c.do(ctx, "resolved ids", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("unexpected resolved submissions payload: %w", err)
	}
	return ids, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		// connection dropped mid-body
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(data), nil
	}
	return nil, classifyStatus(op, resp.StatusCode, data)
}

// classifyStatus turns a non-2xx answer into an error. Gateway failures with
// no structured body mean the service itself was not reached.
func classifyStatus(op string, status int, data []byte) error {
	structured := json.Valid(data) && len(bytes.TrimSpace(data)) > 0
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		if !structured {
			return &NetworkError{Op: op, Err: fmt.Errorf("upstream unavailable (%d)", status)}
		}
	}

	apiErr := &APIError{Status: status}
	if structured {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		apiErr.Body = json.RawMessage(data)
		var env struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &env) == nil {
			apiErr.Message = env.Error
			if apiErr.Message == "" {
				apiErr.Message = env.Message
			}
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// parseIDs accepts {"ids":[...]} or a bare array, with numeric or string ids.
func parseIDs(raw json.RawMessage) ([]int64, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var env struct {
			IDs []json.RawMessage `json:"ids"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		items = env.IDs
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := parseID(item)
		if err != nil {
			logger.Debug("skipping unparsable resolved id", zap.ByteString("raw", item))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(item json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(item, &n); err == nil {
		if id, err := n.Int64(); err == nil {
			return id, nil
		}
		f, err := n.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("non-integer id %s", n)
		}
		return int64(f), nil
	}
	var s string
	if err := json.Unmarshal(item, &s); err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
