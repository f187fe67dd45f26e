package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

// Error is a non-2xx answer from the agent.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent returned %d: %s", e.Status, e.Message)
}

// AgentClient talks to a running rollcall agent over its local HTTP API.
type AgentClient struct {
	addr       string
	token      string
	httpClient *http.Client

	// OnReset is called when the agent can no longer replay from the last
	// seen seq. Callers should reload their view with Pending.
	OnReset func()

	mu      sync.RWMutex
	lastSeq int64

	heartbeatTimeout time.Duration
}

func NewAgentClient(addr, token string) *AgentClient {
	return &AgentClient{
		addr:             strings.TrimRight(addr, "/"),
		token:            token,
		httpClient:       &http.Client{Timeout: 0},
		heartbeatTimeout: 45 * time.Second,
	}
}

func (c *AgentClient) LastSeq() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeq
}

func (c *AgentClient) Save(ctx context.Context, p v1.AttendancePayload) (*v1.SaveResult, error) {
	var res v1.SaveResult
	if err := c.call(ctx, http.MethodPost, "/v1/attendance", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AgentClient) Pending(ctx context.Context) (*v1.PendingList, error) {
	var res v1.PendingList
	if err := c.call(ctx, http.MethodGet, "/v1/pending", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AgentClient) DeleteGroup(ctx context.Context, key string) (int, error) {
	var res struct {
		Deleted int `json:"deleted"`
	}
	if err := c.call(ctx, http.MethodDelete, "/v1/pending/groups/"+url.PathEscape(key), nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

func (c *AgentClient) SyncNow(ctx context.Context) (v1.SyncResult, error) {
	var res v1.SyncResult
	err := c.call(ctx, http.MethodPost, "/v1/sync", nil, &res)
	return res, err
}

func (c *AgentClient) RetryAll(ctx context.Context) (v1.SyncResult, error) {
	var res v1.SyncResult
	err := c.call(ctx, http.MethodPost, "/v1/sync/retry-all", nil, &res)
	return res, err
}

func (c *AgentClient) SetNetwork(ctx context.Context, online bool) error {
	return c.call(ctx, http.MethodPut, "/v1/network", map[string]bool{"online": online}, nil)
}

func (c *AgentClient) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &Error{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *AgentClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Watch follows the agent's event stream until ctx is done, reconnecting
// with backoff and resuming from the last seen seq.
func (c *AgentClient) Watch(ctx context.Context, handle func(v1.Event)) {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connected, err := c.watchOnce(ctx, handle)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = time.Second
		}
		if err != nil {
			logger.Warn("event stream disconnected", zap.Error(err))
		}

		jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *AgentClient) watchOnce(ctx context.Context, handle func(v1.Event)) (bool, error) {
	reqCtx, reqCancel := context.WithCancel(ctx)
	defer reqCancel()

	u := fmt.Sprintf("%s/v1/stream?last_seq=%d", c.addr, c.LastSeq())
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &Error{Status: resp.StatusCode, Message: "stream refused"}
	}

	// Watchdog for heartbeats
	lastActivity := time.Now().UnixNano()
	go func() {
		ticker := time.NewTicker(c.heartbeatTimeout / 5)
		defer ticker.Stop()
		for {
			select {
			case <-reqCtx.Done():
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, atomic.LoadInt64(&lastActivity))) > c.heartbeatTimeout {
					logger.Warn("stream heartbeat timeout, reconnecting")
					reqCancel()
					return
				}
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var eventType string
	var data bytes.Buffer

	for scanner.Scan() {
		atomic.StoreInt64(&lastActivity, time.Now().UnixNano())
		line := scanner.Text()
		if line != "" {
			switch {
			case strings.HasPrefix(line, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteString("\n")
				}
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
			continue
		}

		switch eventType {
		case "reset":
			logger.Warn("stream reset, replay window exceeded")
			c.mu.Lock()
			c.lastSeq = 0
			c.mu.Unlock()
			if c.OnReset != nil {
				c.OnReset()
			}
		case "ping", "":
		default:
			c.dispatch(data.Bytes(), handle)
		}
		eventType = ""
		data.Reset()
	}
	return true, scanner.Err()
}

func (c *AgentClient) dispatch(raw []byte, handle func(v1.Event)) {
	var ev v1.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Error("failed to decode stream event", zap.Error(err))
		return
	}

	c.mu.Lock()
	if ev.Seq <= c.lastSeq {
		c.mu.Unlock()
		return
	}
	c.lastSeq = ev.Seq
	c.mu.Unlock()

	if handle != nil {
		handle(ev)
	}
}
