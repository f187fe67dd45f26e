package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

func writeEvent(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", name, data)
	w.(http.Flusher).Flush()
}

func TestWatchDeliversInOrderAndSkipsDuplicates(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("last_seq")
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message", `{"seq":1,"kind":"progress","current":1,"total":2}`)
		writeEvent(w, "ping", "pong")
		writeEvent(w, "message", `{"seq":1,"kind":"progress","current":1,"total":2}`)
		writeEvent(w, "message", `{"seq":2,"kind":"complete"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var seen []int64
	c.Watch(ctx, func(ev v1.Event) {
		seen = append(seen, ev.Seq)
		if len(seen) == 2 {
			cancel()
		}
	})

	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, int64(2), c.LastSeq())
	assert.Equal(t, "0", gotQuery)
}

func TestWatchResumesFromLastSeq(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("last_seq"))
		n := len(queries)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		if n == 1 {
			writeEvent(w, "message", `{"seq":3,"kind":"progress"}`)
			return
		}
		writeEvent(w, "message", `{"seq":4,"kind":"complete"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.Watch(ctx, func(ev v1.Event) {
		if ev.Seq == 4 {
			cancel()
		}
	})

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(queries), 2)
	assert.Equal(t, "0", queries[0])
	assert.Equal(t, "3", queries[1])
}

func TestWatchReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message", `{"seq":8,"kind":"progress"}`)
		writeEvent(w, "reset", "seq_too_old")
		writeEvent(w, "message", `{"seq":1,"kind":"complete"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, "")
	resets := 0
	c.OnReset = func() { resets++ }

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var seen []int64
	c.Watch(ctx, func(ev v1.Event) {
		seen = append(seen, ev.Seq)
		if len(seen) == 2 {
			cancel()
		}
	})

	assert.Equal(t, 1, resets)
	assert.Equal(t, []int64{8, 1}, seen)
}

func TestCallErrorAndToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/v1/sync":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":3,"failed":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"pending group not found"}`))
		}
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, "tok")
	res, err := c.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Success)
	assert.Equal(t, "Bearer tok", auth)

	_, err = c.DeleteGroup(context.Background(), "9|2026-05-10|mass")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "pending group not found", apiErr.Message)
}
