package scrape

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
)

const (
	MinMaxResults     = 1
	MaxMaxResults     = 100
	DefaultMaxResults = 10
)

// Query selects messages addressed to Recipient whose subject contains SubjectSubstring.
type Query struct {
	Recipient        string
	SubjectSubstring string
	MaxResults       int64
}

// Key identifies the persisted artifact of a query.
type Key struct {
	Recipient        string
	SubjectSubstring string
}

// NewQuery validates its arguments and returns a Query.
// The returned error is a *ValidationError.
func NewQuery(recipient, subjectSubstring string, maxResults int64) (Query, error) {
	var fields []FieldError

	if err := validateRecipient(recipient); err != nil {
		fields = append(fields, FieldError{
			Field: "email_id",
			Msg:   "value is not a valid email address: " + err.Error(),
			Type:  "value_error",
		})
	}

	if maxResults < MinMaxResults {
		fields = append(fields, FieldError{
			Field: "max_results",
			Msg:   fmt.Sprintf("Input should be greater than or equal to %d", MinMaxResults),
			Type:  "greater_than_equal",
		})
	}
	if maxResults > MaxMaxResults {
		fields = append(fields, FieldError{
			Field: "max_results",
			Msg:   fmt.Sprintf("Input should be less than or equal to %d", MaxMaxResults),
			Type:  "less_than_equal",
		})
	}

	if len(fields) > 0 {
		return Query{}, &ValidationError{Fields: fields}
	}

	return Query{
		Recipient:        recipient,
		SubjectSubstring: subjectSubstring,
		MaxResults:       maxResults,
	}, nil
}

func validateRecipient(recipient string) error {
	if recipient == "" {
		return fmt.Errorf("empty address")
	}

	addr, err := mail.ParseAddress(recipient)
	if err != nil {
		return err
	}
	if addr.Name != "" || addr.Address != recipient {
		return fmt.Errorf("expected a bare address")
	}

	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return fmt.Errorf("the domain part must contain a period")
	}

	return nil
}

// Key returns the artifact key of the query.
func (q Query) Key() Key {
	return Key{Recipient: q.Recipient, SubjectSubstring: q.SubjectSubstring}
}

// SearchExpression renders the query in Gmail search syntax. The subject is
// quoted so multi-word substrings stay inside the subject operator.
func (q Query) SearchExpression() string {
	subject := strings.TrimSpace(strings.ReplaceAll(q.SubjectSubstring, `"`, " "))
	return fmt.Sprintf(`subject:"%s" to:%s`, subject, q.Recipient)
}
