// Package backend is the HTTP client for the remote transit API the core
// polls and reports to. The backend owns checkpoint canonicalization and the
// per-route driver-locations feed; this client only consumes their results.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

// Client talks to the transit backend over HTTP. Transient failures are
// retried with fibonacci backoff before surfacing as
// domain.ErrBackendUnavailable; request timeouts belong to the injected
// http.Client, not this package.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	maxRetries uint64
}

// NewClient constructs a Client for the backend at baseURL.
// httpClient may be nil, in which case a client with a 10s timeout is used.
func NewClient(baseURL string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log,
		maxRetries: 2,
	}
}

// RouteDriverLocations returns the last-known location snapshot of every
// driver currently reporting on the given route. Implements
// detector.LocationFetcher.
func (c *Client) RouteDriverLocations(ctx context.Context, routeID string) ([]domain.DriverLocationSnapshot, error) {
	endpoint := fmt.Sprintf("%s/routes/%s/driver-locations", c.baseURL, url.PathEscape(routeID))

	var payload struct {
		Drivers []domain.DriverLocationSnapshot `json:"drivers"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("backend.Client.RouteDriverLocations: %w", err)
	}
	return payload.Drivers, nil
}

// ResolveCheckpoint asks the backend for the canonical checkpoint behind a
// scanned QR code. QR payload validation is the backend's job; a code it
// rejects comes back as domain.ErrNotFound.
func (c *Client) ResolveCheckpoint(ctx context.Context, code string) (domain.Checkpoint, error) {
	endpoint := fmt.Sprintf("%s/checkpoints/scan?code=%s", c.baseURL, url.QueryEscape(code))

	var cp domain.Checkpoint
	if err := c.getJSON(ctx, endpoint, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("backend.Client.ResolveCheckpoint: %w", err)
	}
	if cp.ScannedAt.IsZero() {
		cp.ScannedAt = time.Now().UTC()
	}
	return cp, nil
}

// getJSON performs a GET with retry and decodes the response body into out.
// 5xx responses and transport errors are retried; 4xx responses are not.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return domain.ErrNotFound
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%w: backend returned %d", domain.ErrBackendUnavailable, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("backend returned %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
