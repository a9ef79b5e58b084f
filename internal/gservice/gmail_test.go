package gservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hal9000y/gmail-scraper/internal/auth"
	"github.com/hal9000y/gmail-scraper/internal/gservice"
	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

type tokenProviderMock struct {
	err error
}

func (m *tokenProviderMock) Refresh(context.Context) (*oauth2.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &oauth2.Token{AccessToken: "access", TokenType: "Bearer"}, nil
}

func (m *tokenProviderMock) TokenSource(context.Context) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access", TokenType: "Bearer"})
}

func newFakeGmail(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))

		q := r.URL.Query()
		if q.Get("q") == "broken" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid query"}}`))
			return
		}

		resp := gmail.ListMessagesResponse{
			Messages: []*gmail.Message{{Id: "m-1"}, {Id: "m-2"}},
		}
		if q.Get("pageToken") == "" {
			resp.NextPageToken = "p-2"
		}
		assert.Equal(t, "2", q.Get("maxResults"))
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(gmail.Message{
			Id: r.PathValue("id"),
			Payload: &gmail.MessagePart{
				Headers: []*gmail.MessagePartHeader{{Name: "From", Value: "a@example.com"}},
				Body:    &gmail.MessagePartBody{Data: "SGVsbG8gV29ybGQ="},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestGMail(t *testing.T) {
	srv := newFakeGmail(t)
	m := gservice.NewGmail(&tokenProviderMock{}, option.WithEndpoint(srv.URL+"/"))
	ctx := context.Background()

	t.Run("list first page", func(t *testing.T) {
		resp, err := m.ListMessages(ctx, `subject:"Invoice" to:me@example.com`, "", 2)
		require.NoError(t, err)
		assert.Len(t, resp.Messages, 2)
		assert.Equal(t, "p-2", resp.NextPageToken)
	})

	t.Run("list next page", func(t *testing.T) {
		resp, err := m.ListMessages(ctx, `subject:"Invoice" to:me@example.com`, "p-2", 2)
		require.NoError(t, err)
		assert.Empty(t, resp.NextPageToken)
	})

	t.Run("list http error", func(t *testing.T) {
		_, err := m.ListMessages(ctx, "broken", "", 2)
		require.Error(t, err)
		assert.ErrorIs(t, err, scrape.ErrProviderTransport)
		assert.NotErrorIs(t, err, scrape.ErrAuth)
	})

	t.Run("get message", func(t *testing.T) {
		msg, err := m.GetMessage(ctx, "m-7")
		require.NoError(t, err)
		assert.Equal(t, "m-7", msg.Id)

		summary, err := scrape.ExtractSummary(msg)
		assert.ErrorIs(t, err, scrape.ErrMalformedMessage)
		assert.Empty(t, summary)
	})

	t.Run("get message http error", func(t *testing.T) {
		_, err := m.GetMessage(ctx, "missing")
		assert.ErrorIs(t, err, scrape.ErrProviderTransport)
	})
}

func TestGMailAuthErrors(t *testing.T) {
	srv := newFakeGmail(t)

	cases := []error{
		auth.ErrTokenNotSet,
		auth.ErrTokenExpired,
		fmt.Errorf("token refresh failed: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}),
		errors.New("keyring locked"),
	}

	for _, tokErr := range cases {
		t.Run(tokErr.Error(), func(t *testing.T) {
			m := gservice.NewGmail(&tokenProviderMock{err: tokErr}, option.WithEndpoint(srv.URL+"/"))

			_, err := m.ListMessages(context.Background(), "q", "", 2)
			assert.ErrorIs(t, err, scrape.ErrAuth)
			assert.ErrorIs(t, err, tokErr)
			assert.NotErrorIs(t, err, scrape.ErrProviderTransport)
		})
	}
}
