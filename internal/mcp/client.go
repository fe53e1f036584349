package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

// Client is the HTTP client for the marketplace admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new admin API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ListListings lists listings, optionally of one owner
func (c *Client) ListListings(ctx context.Context, owner string) ([]*domain.Listing, error) {
	path := "/api/listings"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var listings []*domain.Listing
	if err := c.do(ctx, http.MethodGet, path, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// GetListing gets one listing
func (c *Client) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	var l domain.Listing
	if err := c.do(ctx, http.MethodGet, "/api/listings/"+url.PathEscape(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// PublishListing publishes a listing now
func (c *Client) PublishListing(ctx context.Context, id string) (*usecase.PublishResult, error) {
	var res usecase.PublishResult
	if err := c.do(ctx, http.MethodPost, "/api/listings/"+url.PathEscape(id)+"/publish", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteListing deletes a listing
func (c *Client) DeleteListing(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/listings/"+url.PathEscape(id), nil)
}

// RunSweep runs one auto-post sweep
func (c *Client) RunSweep(ctx context.Context) (*usecase.SweepReport, error) {
	var report usecase.SweepReport
	if err := c.do(ctx, http.MethodPost, "/api/sweep", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListJobs lists armed scheduler jobs
func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelJob disarms a job by name
func (c *Client) CancelJob(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(name), nil)
}

// ============ HTTP Helpers ============

func (c *Client) do(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
