package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"

	"golang.org/x/time/rate"
)

// Configuration
var (
	agentURL = flag.String("url", "http://localhost:8765", "Agent base URL")
	token    = flag.String("token", "", "Bearer token (empty uses X-Dev-Pass)")
	writers  = flag.Int("c", 50, "Concurrent submitters")
	watchers = flag.Int("w", 20, "Concurrent stream watchers")
	rps      = flag.Float64("rps", 100, "Total submissions per second")
	duration = flag.Duration("d", 60*time.Second, "Test duration")
	classes  = flag.Int("classes", 30, "Distinct class ids to spread saves over")
)

// Metrics
var (
	saved        int64
	queued       int64
	saveErrors   int64
	activeWatch  int64
	eventsRx     int64
	latencySum   int64 // milliseconds
	latencyCount int64
)

func main() {
	flag.Parse()

	fmt.Printf("Starting load test\n")
	fmt.Printf("   Target: %s\n", *agentURL)
	fmt.Printf("   Writers: %d  Watchers: %d  RPS: %.0f\n", *writers, *watchers, *rps)

	http.DefaultTransport.(*http.Transport).MaxIdleConnsPerHost = *writers + *watchers

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// Metric Reporter
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				latSum := atomic.SwapInt64(&latencySum, 0)
				latCnt := atomic.SwapInt64(&latencyCount, 0)
				avgLat := float64(0)
				if latCnt > 0 {
					avgLat = float64(latSum) / float64(latCnt)
				}
				fmt.Printf("[%s] Saved: %d | Queued: %d | Errors: %d | Watchers: %d | Events/s: %d | Avg Save: %.2f ms\n",
					time.Now().Format("15:04:05"),
					atomic.LoadInt64(&saved), atomic.LoadInt64(&queued), atomic.LoadInt64(&saveErrors),
					atomic.LoadInt64(&activeWatch), atomic.SwapInt64(&eventsRx, 0), avgLat)
			}
		}
	}()

	for i := 0; i < *watchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWatcher(ctx)
		}()
	}

	limiter := rate.NewLimiter(rate.Limit(*rps), *writers)
	for i := 0; i < *writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWriter(ctx, id, limiter)
		}(i)
	}

	wg.Wait()
	fmt.Printf("Done. saved=%d queued=%d errors=%d\n", saved, queued, saveErrors)
}

func authorize(req *http.Request) {
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
		return
	}
	req.Header.Set("X-Dev-Pass", "true")
}

func runWriter(ctx context.Context, id int, limiter *rate.Limiter) {
	rnd := rand.New(rand.NewSource(int64(id)))
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		p := v1.AttendancePayload{
			ClassID:     int64(rnd.Intn(*classes) + 1),
			Date:        time.Now().Format(constraints.DateLayout),
			SessionType: constraints.SessionCatechism,
			Records: []v1.AttendanceRecord{
				{StudentID: int64(rnd.Intn(500) + 1), Present: rnd.Intn(2) == 0},
			},
		}
		body, _ := json.Marshal(p)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, *agentURL+"/v1/attendance", bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		authorize(req)

		start := time.Now()
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if atomic.AddInt64(&saveErrors, 1) == 1 {
				fmt.Printf("Error saving: %v\n", err)
			}
			continue
		}
		resp.Body.Close()
		atomic.AddInt64(&latencySum, time.Since(start).Milliseconds())
		atomic.AddInt64(&latencyCount, 1)

		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddInt64(&saved, 1)
		case http.StatusAccepted:
			atomic.AddInt64(&queued, 1)
		default:
			if atomic.AddInt64(&saveErrors, 1) == 1 {
				fmt.Printf("Error status code: %d\n", resp.StatusCode)
			}
		}
	}
}

func runWatcher(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *agentURL+"/v1/stream", nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	authorize(req)

	client := &http.Client{
		Timeout: 0, // Infinite timeout for SSE
	}
	resp, err := client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return
	}
	defer resp.Body.Close()

	atomic.AddInt64(&activeWatch, 1)
	defer atomic.AddInt64(&activeWatch, -1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if strings.HasPrefix(strings.TrimSpace(line), "data:{") {
			atomic.AddInt64(&eventsRx, 1)
		}
	}
}
