package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

type ScrapeEmailsRequest struct {
	EmailID          string `json:"email_id" jsonschema:"recipient email address"`
	SubjectSubstring string `json:"subject_substring" jsonschema:"phrase the subject must contain"`
	MaxResults       int64  `json:"max_results,omitempty" jsonschema:"messages to fetch, 1 to 100, default 10"`
}

type ScrapeEmailsResponse struct {
	EmailID          string           `json:"email_id" jsonschema:"recipient email address"`
	SubjectSubstring string           `json:"subject_substring" jsonschema:"subject phrase"`
	Results          []MessageSummary `json:"results" jsonschema:"scraped messages"`
}

type scraper interface {
	Scrape(ctx context.Context, q scrape.Query) (scrape.ResultSet, error)
}

func NewScrapeEmails(s scraper) *ScrapeEmails {
	return &ScrapeEmails{
		scraper: s,
	}
}

type ScrapeEmails struct {
	scraper scraper
}

func (t *ScrapeEmails) ScrapeEmails(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ScrapeEmailsRequest,
) (*mcp.CallToolResult, ScrapeEmailsResponse, error) {
	if input.MaxResults == 0 {
		input.MaxResults = scrape.DefaultMaxResults
	}

	q, err := scrape.NewQuery(input.EmailID, input.SubjectSubstring, input.MaxResults)
	if err != nil {
		return nil, ScrapeEmailsResponse{}, err
	}

	results, err := t.scraper.Scrape(ctx, q)
	if err != nil {
		return nil, ScrapeEmailsResponse{}, fmt.Errorf("scraper.Scrape failed: %w", err)
	}

	return nil, ScrapeEmailsResponse{
		EmailID:          q.Recipient,
		SubjectSubstring: q.SubjectSubstring,
		Results:          toSummaries(results),
	}, nil
}
