package tool

import "github.com/hal9000y/gmail-scraper/internal/scrape"

// MessageSummary is one scraped message as returned to MCP clients.
type MessageSummary struct {
	Sender  string `json:"sender" jsonschema:"raw From header"`
	Subject string `json:"subject" jsonschema:"raw Subject header"`
	Snippet string `json:"snippet" jsonschema:"decoded body followed by ..."`
}

func toSummaries(rs scrape.ResultSet) []MessageSummary {
	out := make([]MessageSummary, 0, len(rs))
	for _, r := range rs {
		out = append(out, MessageSummary{Sender: r.Sender, Subject: r.Subject, Snippet: r.Snippet})
	}
	return out
}
