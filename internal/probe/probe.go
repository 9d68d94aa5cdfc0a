// Package probe checks reachability of the external endpoints a project
// depends on.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lcrostarosa/lifeboat/internal/config"
)

// Result is the outcome of probing one endpoint.
type Result struct {
	Name       string        `json:"name" yaml:"name"`
	URL        string        `json:"url" yaml:"url"`
	Reachable  bool          `json:"reachable" yaml:"reachable"`
	StatusCode int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Latency    time.Duration `json:"latency" yaml:"latency"`
	CheckedAt  time.Time     `json:"checked_at" yaml:"checked_at"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Prober probes endpoints over HTTP.
type Prober struct {
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a prober. A nil client gets one with the given timeout.
func New(client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Prober{httpClient: client, timeout: timeout}
}

// Probe checks every endpoint concurrently. Results keep the order of
// endpoints. An endpoint answering with any status below 500 is reachable;
// auth and routing errors still prove the service is up.
func (p *Prober) Probe(ctx context.Context, endpoints []config.Endpoint) []Result {
	results := make([]Result, len(endpoints))

	g, gCtx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			results[i] = p.probeOne(gCtx, ep)
			// Unreachable endpoints are results, not errors.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Prober) probeOne(ctx context.Context, ep config.Endpoint) Result {
	result := Result{Name: ep.Name, URL: ep.URL, CheckedAt: time.Now()}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("invalid request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", "lifeboat-probe")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	result.StatusCode = resp.StatusCode
	result.Reachable = resp.StatusCode < http.StatusInternalServerError
	if !result.Reachable {
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return result
}
