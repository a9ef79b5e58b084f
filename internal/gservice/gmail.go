// Package gservice adapts the Gmail API to the provider surface used by scrape.
package gservice

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hal9000y/gmail-scraper/internal/auth"
	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

const gmailUserID = "me"

type tokenProvider interface {
	Refresh(ctx context.Context) (*oauth2.Token, error)
	TokenSource(ctx context.Context) oauth2.TokenSource
}

// NewGmail creates a Gmail client. opts are appended to every service handle.
func NewGmail(tok tokenProvider, opts ...option.ClientOption) *GMail {
	return &GMail{
		tok:  tok,
		opts: opts,
	}
}

// GMail builds a fresh *gmail.Service per call. Errors wrap scrape.ErrAuth
// or scrape.ErrProviderTransport.
type GMail struct {
	tok  tokenProvider
	opts []option.ClientOption
}

func (m *GMail) ListMessages(ctx context.Context, Q, pageToken string, maxResults int64) (*gmail.ListMessagesResponse, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("newSvc failed: %w", err)
	}

	call := svc.Users.Messages.List(gmailUserID).
		Q(Q).
		MaxResults(maxResults)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	result, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("messages.List failed: %w", classify(err))
	}

	return result, nil
}

func (m *GMail) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, fmt.Errorf("newSvc failed: %w", err)
	}

	msg, err := svc.Users.Messages.Get(gmailUserID, msgID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("messages.Get failed: %w", classify(err))
	}

	return msg, nil
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	if _, err := m.tok.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: tok.Refresh failed: %w", scrape.ErrAuth, err)
	}

	clt := oauth2.NewClient(ctx, m.tok.TokenSource(ctx))

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, m.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gmail.NewService failed: %w", scrape.ErrProviderTransport, err)
	}

	return svc, nil
}

// classify separates token failures from everything else that went wrong on the wire.
func classify(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.Is(err, auth.ErrTokenNotSet) || errors.Is(err, auth.ErrTokenExpired) || errors.As(err, &rerr) {
		return fmt.Errorf("%w: %w", scrape.ErrAuth, err)
	}

	return fmt.Errorf("%w: %w", scrape.ErrProviderTransport, err)
}
