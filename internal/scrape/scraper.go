// Package scrape searches a mailbox for messages by subject and extracts
// sender, subject and body text from each match.
package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

// MissingHeaderPolicy decides what happens to a message that cannot be extracted.
type MissingHeaderPolicy string

const (
	// PolicyFail aborts the whole request with ErrMalformedMessage.
	PolicyFail MissingHeaderPolicy = "fail"
	// PolicySkip drops the message and keeps going.
	PolicySkip MissingHeaderPolicy = "skip"
)

// ParseMissingHeaderPolicy accepts "fail", "skip" or "" (fail).
func ParseMissingHeaderPolicy(s string) (MissingHeaderPolicy, error) {
	switch MissingHeaderPolicy(s) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown missing header policy %q", s)
	}
}

type provider interface {
	ListMessages(ctx context.Context, Q, pageToken string, maxResults int64) (*gmail.ListMessagesResponse, error)
	GetMessage(ctx context.Context, msgID string) (*gmail.Message, error)
}

// Sink persists the results of a query, replacing whatever was stored under the same key.
type Sink interface {
	Save(ctx context.Context, key Key, results ResultSet) error
}

// NewScraper creates a Scraper.
func NewScraper(p provider, sink Sink, log *zap.SugaredLogger, policy MissingHeaderPolicy) *Scraper {
	if policy == "" {
		policy = PolicyFail
	}
	return &Scraper{
		provider: p,
		sink:     sink,
		log:      log,
		policy:   policy,
	}
}

// Scraper runs subject searches against a mail provider.
type Scraper struct {
	provider provider
	sink     Sink
	log      *zap.SugaredLogger
	policy   MissingHeaderPolicy
}

// Scrape returns the messages matching q in provider order and persists them.
// Provider transport failures yield an empty ResultSet and a nil error.
func (s *Scraper) Scrape(ctx context.Context, q Query) (ResultSet, error) {
	log := s.log.With("email_id", q.Recipient, "subject_substring", q.SubjectSubstring)

	results, err := s.collect(ctx, q, log)
	if errors.Is(err, ErrProviderTransport) {
		log.Errorw("provider request failed, returning no results", "error", err)
		return ResultSet{}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.sink.Save(ctx, q.Key(), results); err != nil {
		return nil, fmt.Errorf("sink.Save failed: %w", err)
	}

	log.Infow("scrape finished", "results", len(results))

	return results, nil
}

func (s *Scraper) collect(ctx context.Context, q Query, log *zap.SugaredLogger) (ResultSet, error) {
	ids, err := s.listIDs(ctx, q)
	if err != nil {
		return nil, err
	}

	results := make(ResultSet, 0, len(ids))

	for _, id := range ids {
		msg, err := s.provider.GetMessage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get message %s failed: %w", id, err)
		}

		summary, err := ExtractSummary(msg)
		if err != nil {
			if s.policy == PolicySkip && errors.Is(err, ErrMalformedMessage) {
				log.Warnw("skipping message", "message_id", id, "error", err)
				continue
			}
			return nil, err
		}

		results = append(results, summary)
	}

	return results, nil
}

func (s *Scraper) listIDs(ctx context.Context, q Query) ([]string, error) {
	expr := q.SearchExpression()
	ids := make([]string, 0, q.MaxResults)
	pageToken := ""

	for {
		remaining := q.MaxResults - int64(len(ids))

		resp, err := s.provider.ListMessages(ctx, expr, pageToken, remaining)
		if err != nil {
			return nil, fmt.Errorf("list messages failed: %w", err)
		}

		for _, m := range resp.Messages {
			if int64(len(ids)) >= q.MaxResults {
				break
			}
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" || len(resp.Messages) == 0 || int64(len(ids)) >= q.MaxResults {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}
