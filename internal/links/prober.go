package links

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// DefaultConcurrency bounds simultaneous probes so target hosts are not
// hammered.
const DefaultConcurrency = 5

// MaxRetries caps automatic re-probing of failed links. Capped links stay
// as-is for manual review.
const MaxRetries = 3

const probeTimeout = 10 * time.Second

const maxRateLimitWait = 30 * time.Second

// LinkStore is the slice of the store the prober needs.
type LinkStore interface {
	ClaimProbeable(ctx context.Context, limit, maxRetries int) ([]models.Link, error)
	RecordProbe(ctx context.Context, linkID string, status models.LinkStatus, probeErr string) error
}

// Prober validates link reachability with bounded concurrency.
type Prober struct {
	store      LinkStore
	client     *http.Client
	log        *slog.Logger
	sem        *semaphore.Weighted
	batchSize  int
	maxRetries int
}

// NewProber builds a Prober. Non-positive concurrency selects the default.
func NewProber(store LinkStore, log *slog.Logger, concurrency, batchSize int) *Prober {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Prober{
		store:      store,
		client:     &http.Client{Timeout: probeTimeout},
		log:        log,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		batchSize:  batchSize,
		maxRetries: MaxRetries,
	}
}

// RunOnce claims one batch of probeable links, validates each, and records
// the outcomes. Returns the number of links probed.
func (p *Prober) RunOnce(ctx context.Context) (int, error) {
	batch, err := p.store.ClaimProbeable(ctx, p.batchSize, p.maxRetries)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, link := range batch {
		if err := p.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer p.sem.Release(1)

			status, probeErr := p.probe(gctx, link)
			if err := p.store.RecordProbe(gctx, link.ID, status, probeErr); err != nil {
				p.log.Warn("record probe failed",
					slog.String("link_id", link.ID),
					slog.Any("err", err),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return len(batch), err
	}
	return len(batch), nil
}

// probe issues one bounded GET following redirects and classifies the
// outcome. Rate-limit responses trigger a backoff honoring the server's
// hint before being recorded as retryable errors.
func (p *Prober) probe(ctx context.Context, link models.Link) (models.LinkStatus, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return models.LinkStatusError, err.Error()
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return models.LinkStatusTimeout, "request timeout"
		}
		return models.LinkStatusError, err.Error()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		p.backoff(ctx, resp, link.RetryCount)
		return models.LinkStatusError, "rate limited"
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return models.LinkStatusValid, ""
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return models.LinkStatusRedirect, ""
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return models.LinkStatusInvalid, "HTTP " + strconv.Itoa(resp.StatusCode)
	default:
		return models.LinkStatusError, "HTTP " + strconv.Itoa(resp.StatusCode)
	}
}

// backoff waits out a rate limit using the Retry-After hint when present,
// otherwise exponentially by attempt.
func (p *Prober) backoff(ctx context.Context, resp *http.Response, attempt int) {
	wait := time.Duration(1<<uint(attempt)) * time.Second
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			wait = time.Duration(seconds) * time.Second
		}
	}
	if wait > maxRateLimitWait {
		wait = maxRateLimitWait
	}

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
