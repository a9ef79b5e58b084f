package scrape

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"google.golang.org/api/gmail/v1"
)

// SnippetMarker is appended to every extracted body.
const SnippetMarker = "..."

// MessageSummary is the extracted view of one matched message.
type MessageSummary struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

// ResultSet holds summaries in provider order.
type ResultSet []MessageSummary

// Headers maps a header name to the value of its first occurrence.
type Headers map[string]string

// NewHeaders builds Headers from a message part; later duplicates are ignored.
func NewHeaders(headers []*gmail.MessagePartHeader) Headers {
	h := make(Headers, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		if _, ok := h[header.Name]; !ok {
			h[header.Name] = header.Value
		}
	}
	return h
}

// Get returns the value of the named header. Names match exactly.
func (h Headers) Get(name string) (string, bool) {
	v, ok := h[name]
	return v, ok
}

// ExtractSummary reads sender, subject and body text from a full message.
// Every failure wraps ErrMalformedMessage.
func ExtractSummary(msg *gmail.Message) (MessageSummary, error) {
	if msg == nil || msg.Payload == nil {
		return MessageSummary{}, fmt.Errorf("message has no payload: %w", ErrMalformedMessage)
	}

	headers := NewHeaders(msg.Payload.Headers)

	sender, ok := headers.Get("From")
	if !ok {
		return MessageSummary{}, fmt.Errorf("message %s: header From not found: %w", msg.Id, ErrMalformedMessage)
	}
	subject, ok := headers.Get("Subject")
	if !ok {
		return MessageSummary{}, fmt.Errorf("message %s: header Subject not found: %w", msg.Id, ErrMalformedMessage)
	}

	data, ok := bodyData(msg.Payload)
	if !ok {
		return MessageSummary{}, fmt.Errorf("message %s: no body data: %w", msg.Id, ErrMalformedMessage)
	}

	body, err := decodeBase64URL(data)
	if err != nil {
		return MessageSummary{}, fmt.Errorf("message %s: %w", msg.Id, err)
	}

	return MessageSummary{
		Sender:  sender,
		Subject: subject,
		Snippet: body + SnippetMarker,
	}, nil
}

// bodyData prefers the inline payload body and falls back to the first part.
func bodyData(payload *gmail.MessagePart) (string, bool) {
	if payload.Body != nil && payload.Body.Data != "" {
		return payload.Body.Data, true
	}

	if len(payload.Parts) == 0 || payload.Parts[0] == nil {
		return "", false
	}

	first := payload.Parts[0]
	if first.Body == nil || first.Body.Data == "" {
		return "", false
	}

	return first.Body.Data, true
}

func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("body is not base64url: %w: %w", ErrMalformedMessage, err)
		}
	}

	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("body is not valid UTF-8: %w", ErrMalformedMessage)
	}

	return string(decoded), nil
}
