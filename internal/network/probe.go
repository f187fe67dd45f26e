package network

import (
	"context"
	"net/http"
	"time"

	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

const DefaultProbeTimeout = 5 * time.Second

// CheckConnectivity is an active liveness probe. It reports true only for a 2xx answer.
func CheckConnectivity(ctx context.Context, client *http.Client, url string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("connectivity probe failed", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Prober feeds a Signal from periodic probes.
type Prober struct {
	signal   *Signal
	url      string
	timeout  time.Duration
	interval time.Duration
	client   *http.Client
}

func NewProber(signal *Signal, url string, timeout, interval time.Duration) *Prober {
	return &Prober{
		signal:   signal,
		url:      url,
		timeout:  timeout,
		interval: interval,
		client:   &http.Client{},
	}
}

func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	logger.Info("connectivity prober started", zap.String("url", p.url), zap.Duration("interval", p.interval))

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("connectivity prober stopped")
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	ok := CheckConnectivity(ctx, p.client, p.url, p.timeout)
	if ctx.Err() != nil {
		// shutting down, not offline
		return
	}
	p.signal.Set(ok)
}
