package tool_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
	"github.com/hal9000y/gmail-scraper/internal/tool"
)

type scraperMock struct {
	ScrapeFunc func(ctx context.Context, q scrape.Query) (scrape.ResultSet, error)

	calls []scrape.Query
}

func (m *scraperMock) Scrape(ctx context.Context, q scrape.Query) (scrape.ResultSet, error) {
	m.calls = append(m.calls, q)
	return m.ScrapeFunc(ctx, q)
}

func connect(t *testing.T, s *scraperMock) *mcp.ClientSession {
	t.Helper()

	server := tool.NewServer(s)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSession.Close() })

	return clientSession
}

func TestScrapeEmails(t *testing.T) {
	mock := &scraperMock{
		ScrapeFunc: func(_ context.Context, q scrape.Query) (scrape.ResultSet, error) {
			if q.SubjectSubstring == "boom" {
				return nil, fmt.Errorf("simulated: %w", scrape.ErrAuth)
			}
			rs := scrape.ResultSet{}
			for i := int64(1); i <= q.MaxResults && i <= 2; i++ {
				rs = append(rs, scrape.MessageSummary{
					Sender:  fmt.Sprintf("Sender %d <s%d@example.com>", i, i),
					Subject: fmt.Sprintf("%s #%d", q.SubjectSubstring, i),
					Snippet: "Hello World...",
				})
			}
			return rs, nil
		},
	}
	session := connect(t, mock)

	cases := []struct {
		name        string
		req         tool.ScrapeEmailsRequest
		expected    tool.ScrapeEmailsResponse
		expectedMax int64
		expectedErr string
	}{
		{
			name:        "default max results",
			req:         tool.ScrapeEmailsRequest{EmailID: "me@example.com", SubjectSubstring: "Invoice"},
			expectedMax: 10,
			expected: tool.ScrapeEmailsResponse{
				EmailID:          "me@example.com",
				SubjectSubstring: "Invoice",
				Results: []tool.MessageSummary{
					{Sender: "Sender 1 <s1@example.com>", Subject: "Invoice #1", Snippet: "Hello World..."},
					{Sender: "Sender 2 <s2@example.com>", Subject: "Invoice #2", Snippet: "Hello World..."},
				},
			},
		},
		{
			name:        "explicit max results",
			req:         tool.ScrapeEmailsRequest{EmailID: "me@example.com", SubjectSubstring: "Invoice", MaxResults: 1},
			expectedMax: 1,
			expected: tool.ScrapeEmailsResponse{
				EmailID:          "me@example.com",
				SubjectSubstring: "Invoice",
				Results: []tool.MessageSummary{
					{Sender: "Sender 1 <s1@example.com>", Subject: "Invoice #1", Snippet: "Hello World..."},
				},
			},
		},
		{
			name:        "invalid address",
			req:         tool.ScrapeEmailsRequest{EmailID: "not-an-email", SubjectSubstring: "Invoice"},
			expectedErr: "email_id",
		},
		{
			name:        "max results over limit",
			req:         tool.ScrapeEmailsRequest{EmailID: "me@example.com", SubjectSubstring: "Invoice", MaxResults: 500},
			expectedErr: "max_results",
		},
		{
			name:        "scrape error",
			req:         tool.ScrapeEmailsRequest{EmailID: "me@example.com", SubjectSubstring: "boom"},
			expectedMax: 10,
			expectedErr: "scraper.Scrape failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock.calls = nil

			result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
				Name:      "scrape_emails",
				Arguments: tc.req,
			})
			require.NoError(t, err)
			require.NotNil(t, result)

			if tc.expectedMax == 0 {
				assert.Empty(t, mock.calls, "invalid requests never reach the scraper")
			} else {
				require.Len(t, mock.calls, 1)
				assert.Equal(t, tc.expectedMax, mock.calls[0].MaxResults)
			}

			if tc.expectedErr != "" {
				require.True(t, result.IsError, "Result should indicate error")
				assert.Contains(t, result.Content[0].(*mcp.TextContent).Text, tc.expectedErr)
				return
			}

			require.False(t, result.IsError, "Scrape failed: %v", result.Content)

			var response tool.ScrapeEmailsResponse
			require.NoError(t, json.Unmarshal(
				[]byte(result.Content[0].(*mcp.TextContent).Text),
				&response,
			))
			assert.Equal(t, tc.expected, response)
		})
	}
}
