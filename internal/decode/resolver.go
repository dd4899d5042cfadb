package decode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// HTTPResolver fetches attachments referenced by URL, capping the payload
// size so a hostile reference cannot exhaust worker memory.
type HTTPResolver struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPResolver builds a resolver with the given payload size limit.
func NewHTTPResolver(maxBytes int64) *HTTPResolver {
	return &HTTPResolver{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: maxBytes,
	}
}

// Resolve downloads the referenced attachment and returns its bytes plus a
// file name derived from the URL path.
func (r *HTTPResolver) Resolve(ctx context.Context, ref string) ([]byte, string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, "", fmt.Errorf("parse attachment ref: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build attachment request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch attachment: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read attachment body: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, "", fmt.Errorf("attachment exceeds %d bytes", r.maxBytes)
	}

	return data, path.Base(parsed.Path), nil
}
