package scrape_test

import (
	"context"
	"encoding/base64"
	"sync"

	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

type providerMock struct {
	ListMessagesFunc func(ctx context.Context, Q, pageToken string, maxResults int64) (*gmail.ListMessagesResponse, error)
	GetMessageFunc   func(ctx context.Context, msgID string) (*gmail.Message, error)

	mu          sync.Mutex
	listCalls   []listCall
	getMsgCalls []string
}

type listCall struct {
	Q          string
	PageToken  string
	MaxResults int64
}

func (m *providerMock) ListMessages(ctx context.Context, Q, pageToken string, maxResults int64) (*gmail.ListMessagesResponse, error) {
	m.mu.Lock()
	m.listCalls = append(m.listCalls, listCall{Q: Q, PageToken: pageToken, MaxResults: maxResults})
	m.mu.Unlock()
	return m.ListMessagesFunc(ctx, Q, pageToken, maxResults)
}

func (m *providerMock) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	m.mu.Lock()
	m.getMsgCalls = append(m.getMsgCalls, msgID)
	m.mu.Unlock()
	return m.GetMessageFunc(ctx, msgID)
}

type sinkMock struct {
	SaveFunc func(ctx context.Context, key scrape.Key, results scrape.ResultSet) error

	saved map[scrape.Key]scrape.ResultSet
	calls int
}

func (m *sinkMock) Save(ctx context.Context, key scrape.Key, results scrape.ResultSet) error {
	m.calls++
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, key, results)
	}
	if m.saved == nil {
		m.saved = make(map[scrape.Key]scrape.ResultSet)
	}
	m.saved[key] = results
	return nil
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func textMessage(id, from, subject, body string) *gmail.Message {
	return &gmail.Message{
		Id: id,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "To", Value: "me@example.com"},
				{Name: "Subject", Value: subject},
			},
			Body: &gmail.MessagePartBody{Data: b64(body)},
		},
	}
}
