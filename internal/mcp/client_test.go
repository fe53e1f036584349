package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

type recordedRequest struct {
	method string
	uri    string
}

func newAdminStub(t *testing.T) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	reply := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/listings", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []*domain.Listing{{ID: "l1", OwnerID: r.URL.Query().Get("owner")}})
	})
	mux.HandleFunc("/api/listings/l1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			reply(w, map[string]string{"deleted": "l1"})
		default:
			reply(w, &domain.Listing{ID: "l1", Name: "Phone X"})
		}
	})
	mux.HandleFunc("/api/listings/l1/publish", func(w http.ResponseWriter, r *http.Request) {
		reply(w, &usecase.PublishResult{Success: true, ListingID: "l1", MessageRef: "om_1"})
	})
	mux.HandleFunc("/api/listings/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		reply(w, map[string]string{"error": "listing not found"})
	})
	mux.HandleFunc("/api/sweep", func(w http.ResponseWriter, r *http.Request) {
		reply(w, &usecase.SweepReport{Candidates: 3, Published: []string{"l1"}})
	})
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []domain.Job{{Kind: domain.JobRepeating, Name: domain.AutoPostJobName}})
	})
	mux.HandleFunc("/api/jobs/auto_post", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]string{"cancelled": "auto_post"})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, recordedRequest{method: r.Method, uri: r.URL.RequestURI()})
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), &requests
}

func TestClient_Listings(t *testing.T) {
	c, requests := newAdminStub(t)
	ctx := context.Background()

	listings, err := c.ListListings(ctx, "ou_seller")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "ou_seller", listings[0].OwnerID)

	l, err := c.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Phone X", l.Name)

	res, err := c.PublishListing(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "om_1", res.MessageRef)

	require.NoError(t, c.DeleteListing(ctx, "l1"))

	assert.Equal(t, []recordedRequest{
		{method: http.MethodGet, uri: "/api/listings?owner=ou_seller"},
		{method: http.MethodGet, uri: "/api/listings/l1"},
		{method: http.MethodPost, uri: "/api/listings/l1/publish"},
		{method: http.MethodDelete, uri: "/api/listings/l1"},
	}, *requests)
}

func TestClient_SweepAndJobs(t *testing.T) {
	c, _ := newAdminStub(t)
	ctx := context.Background()

	report, err := c.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Candidates)

	jobs, err := c.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.AutoPostJobName, jobs[0].Name)

	require.NoError(t, c.CancelJob(ctx, domain.AutoPostJobName))
}

func TestClient_ErrorStatus(t *testing.T) {
	c, _ := newAdminStub(t)

	_, err := c.GetListing(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "listing not found")
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")

	_, err := c.ListJobs(context.Background())
	assert.Error(t, err)
}
