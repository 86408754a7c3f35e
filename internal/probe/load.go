package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Simonization/webservTester/internal/model"
)

// LoadGenerator drives a burst of requests against one URL and reports
// availability. It replaces shelling out to an external load tool.
type LoadGenerator interface {
	Generate(ctx context.Context, url string, requests, concurrency int) (model.LoadStats, error)
}

// BurstGenerator is the production LoadGenerator: a bounded worker pool
// issuing plain GETs over a shared keep-alive client.
type BurstGenerator struct {
	Timeout time.Duration
}

func (g *BurstGenerator) Generate(ctx context.Context, url string, requests, concurrency int) (model.LoadStats, error) {
	client := &http.Client{Timeout: g.Timeout}

	var failures atomic.Int64

	jobs := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for range jobs {
				if err := get(ctx, client, url); err != nil {
					failures.Add(1)
				}
			}
		}()
	}

	sent := 0
	for ; sent < requests; sent++ {
		select {
		case <-ctx.Done():
			// abandoned burst: count unsent requests as failures so a
			// hanging SUT cannot inflate availability
			failures.Add(int64(requests - sent))
			sent = requests
		case jobs <- struct{}{}:
		}
	}
	close(jobs)

	wg.Wait()

	stats := model.LoadStats{
		Requests: requests,
		Failures: int(failures.Load()),
	}
	if requests > 0 {
		stats.Availability = float64(requests-stats.Failures) / float64(requests) * 100
	}

	return stats, nil
}

func get(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyRead))

	if resp.StatusCode >= 500 {
		return errServerError // any 5xx counts against availability
	}

	return nil
}

var errServerError = errors.New("server error response")
