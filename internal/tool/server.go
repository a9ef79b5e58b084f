package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates an MCP server exposing the scraper as a tool.
func NewServer(s scraper) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "gmail-scraper", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scrape_emails",
		Description: "Find messages sent to an address whose subject contains a phrase, persist and return sender, subject and body",
	}, NewScrapeEmails(s).ScrapeEmails)

	return server
}
