package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

// AdminAPI is the admin surface the tools relay to
type AdminAPI interface {
	ListListings(ctx context.Context, owner string) ([]*domain.Listing, error)
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	PublishListing(ctx context.Context, id string) (*usecase.PublishResult, error)
	DeleteListing(ctx context.Context, id string) error
	RunSweep(ctx context.Context) (*usecase.SweepReport, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	CancelJob(ctx context.Context, name string) error
}

// MarketMCPServer exposes marketplace administration as MCP tools
type MarketMCPServer struct {
	server *mcp.Server
	api    AdminAPI
}

// NewServer creates a new marketplace MCP server
func NewServer(api AdminAPI, version string) *MarketMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "feishu-market-tools",
		Version: version,
	}, nil)

	s := &MarketMCPServer{server: server, api: api}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx is done or the client disconnects
func (s *MarketMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Server returns the underlying MCP server
func (s *MarketMCPServer) Server() *mcp.Server {
	return s.server
}

func (s *MarketMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_list_listings",
		Description: "List marketplace listings, newest first. Pass owner_id to list one seller's listings.",
	}, s.listListings)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_get_listing",
		Description: "Get one listing with its publication state.",
	}, s.getListing)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_publish_listing",
		Description: "Publish a listing to the channel now. Already posted listings are not posted again.",
	}, s.publishListing)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_delete_listing",
		Description: "Delete a listing and cancel its scheduled publication.",
	}, s.deleteListing)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_run_sweep",
		Description: "Run one auto-post sweep now and report what was published.",
	}, s.runSweep)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_list_jobs",
		Description: "List armed scheduler jobs: one-shot publications and repeating sweeps.",
	}, s.listJobs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "market_cancel_job",
		Description: "Cancel an armed scheduler job by name.",
	}, s.cancelJob)
}

// ListListingsInput is the input for market_list_listings
type ListListingsInput struct {
	OwnerID string `json:"owner_id,omitempty" jsonschema:"Only list listings of this seller (Feishu open_id)"`
}

// ListingsOutput carries a list of listings
type ListingsOutput struct {
	Count    int               `json:"count"`
	Listings []*domain.Listing `json:"listings"`
}

// ListingIDInput names one listing
type ListingIDInput struct {
	ListingID string `json:"listing_id" jsonschema:"The listing id"`
}

// ListingOutput carries one listing
type ListingOutput struct {
	Listing *domain.Listing `json:"listing"`
}

// PublishOutput is the output of market_publish_listing
type PublishOutput struct {
	Result  *usecase.PublishResult `json:"result"`
	Summary string                 `json:"summary"`
}

// StatusOutput is a simple acknowledgement
type StatusOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EmptyInput is the input for tools without arguments
type EmptyInput struct{}

// SweepOutput is the output of market_run_sweep
type SweepOutput struct {
	Report *usecase.SweepReport `json:"report"`
}

// JobsOutput is the output of market_list_jobs
type JobsOutput struct {
	Count int          `json:"count"`
	Jobs  []domain.Job `json:"jobs"`
}

// CancelJobInput is the input for market_cancel_job
type CancelJobInput struct {
	Name string `json:"name" jsonschema:"The job name, e.g. scheduled_<listing id> or auto_post"`
}

func (s *MarketMCPServer) listListings(ctx context.Context, _ *mcp.CallToolRequest, in ListListingsInput) (*mcp.CallToolResult, ListingsOutput, error) {
	listings, err := s.api.ListListings(ctx, in.OwnerID)
	if err != nil {
		return nil, ListingsOutput{}, err
	}
	return nil, ListingsOutput{Count: len(listings), Listings: listings}, nil
}

func (s *MarketMCPServer) getListing(ctx context.Context, _ *mcp.CallToolRequest, in ListingIDInput) (*mcp.CallToolResult, ListingOutput, error) {
	if in.ListingID == "" {
		return nil, ListingOutput{}, fmt.Errorf("listing_id is required")
	}
	l, err := s.api.GetListing(ctx, in.ListingID)
	if err != nil {
		return nil, ListingOutput{}, err
	}
	return nil, ListingOutput{Listing: l}, nil
}

func (s *MarketMCPServer) publishListing(ctx context.Context, _ *mcp.CallToolRequest, in ListingIDInput) (*mcp.CallToolResult, PublishOutput, error) {
	if in.ListingID == "" {
		return nil, PublishOutput{}, fmt.Errorf("listing_id is required")
	}
	res, err := s.api.PublishListing(ctx, in.ListingID)
	if err != nil {
		return nil, PublishOutput{}, err
	}
	return nil, PublishOutput{Result: res, Summary: usecase.FormatResult(res)}, nil
}

func (s *MarketMCPServer) deleteListing(ctx context.Context, _ *mcp.CallToolRequest, in ListingIDInput) (*mcp.CallToolResult, StatusOutput, error) {
	if in.ListingID == "" {
		return nil, StatusOutput{}, fmt.Errorf("listing_id is required")
	}
	if err := s.api.DeleteListing(ctx, in.ListingID); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Success: true, Message: "listing " + in.ListingID + " deleted"}, nil
}

func (s *MarketMCPServer) runSweep(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, SweepOutput, error) {
	report, err := s.api.RunSweep(ctx)
	if err != nil {
		return nil, SweepOutput{}, err
	}
	return nil, SweepOutput{Report: report}, nil
}

func (s *MarketMCPServer) listJobs(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, JobsOutput, error) {
	jobs, err := s.api.ListJobs(ctx)
	if err != nil {
		return nil, JobsOutput{}, err
	}
	return nil, JobsOutput{Count: len(jobs), Jobs: jobs}, nil
}

func (s *MarketMCPServer) cancelJob(ctx context.Context, _ *mcp.CallToolRequest, in CancelJobInput) (*mcp.CallToolResult, StatusOutput, error) {
	if in.Name == "" {
		return nil, StatusOutput{}, fmt.Errorf("name is required")
	}
	if err := s.api.CancelJob(ctx, in.Name); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Success: true, Message: "job " + in.Name + " cancelled"}, nil
}
