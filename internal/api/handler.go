// Package api serves the scrape endpoint over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

// RequestIDHeader carries the id that tags every log line of a request.
const RequestIDHeader = "X-Request-Id"

type scraper interface {
	Scrape(ctx context.Context, q scrape.Query) (scrape.ResultSet, error)
}

// ScrapeResponse is the 200 body of GET /scrape/.
type ScrapeResponse struct {
	EmailID          string                  `json:"email_id"`
	SubjectSubstring string                  `json:"subject_substring"`
	Results          []scrape.MessageSummary `json:"results"`
}

// ValidationDetail describes one rejected query parameter.
type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationResponse is the 422 body.
type ValidationResponse struct {
	Detail []ValidationDetail `json:"detail"`
}

// ErrorResponse is the 500 body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewScrapeHandler creates the GET /scrape/ handler.
func NewScrapeHandler(s scraper, log *zap.SugaredLogger) *ScrapeHandler {
	return &ScrapeHandler{scraper: s, log: log}
}

// ScrapeHandler validates query parameters and runs a scrape.
type ScrapeHandler struct {
	scraper scraper
	log     *zap.SugaredLogger
}

func (h *ScrapeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)
	log := h.log.With("request_id", requestID)

	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		var verr *scrape.ValidationError
		if !errors.As(err, &verr) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: "An error occurred: " + err.Error()})
			return
		}
		log.Infow("rejected scrape request", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse(verr))
		return
	}

	start := time.Now()
	results, err := h.scraper.Scrape(r.Context(), q)
	if err != nil {
		log.Errorw("scrape failed", "email_id", q.Recipient, "subject_substring", q.SubjectSubstring, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: "An error occurred: " + err.Error()})
		return
	}

	if results == nil {
		results = scrape.ResultSet{}
	}

	log.Infow("scrape served",
		"email_id", q.Recipient,
		"subject_substring", q.SubjectSubstring,
		"max_results", q.MaxResults,
		"results", len(results),
		"duration", time.Since(start),
	)

	writeJSON(w, http.StatusOK, ScrapeResponse{
		EmailID:          q.Recipient,
		SubjectSubstring: q.SubjectSubstring,
		Results:          results,
	})
}

// ParseQuery reads email_id, subject_substring and max_results. Errors are
// *scrape.ValidationError listing every rejected field in parameter order.
func ParseQuery(values url.Values) (scrape.Query, error) {
	maxResults := int64(scrape.DefaultMaxResults)
	var parseErr *scrape.FieldError
	if values.Has("max_results") {
		n, err := strconv.ParseInt(values.Get("max_results"), 10, 64)
		if err != nil {
			parseErr = &scrape.FieldError{
				Field: "max_results",
				Msg:   "Input should be a valid integer, unable to parse string as an integer",
				Type:  "int_parsing",
			}
		} else {
			maxResults = n
		}
	}

	q, err := scrape.NewQuery(values.Get("email_id"), values.Get("subject_substring"), maxResults)

	var verr *scrape.ValidationError
	if err != nil && !errors.As(err, &verr) {
		return scrape.Query{}, err
	}

	var fields []scrape.FieldError
	if values.Has("email_id") {
		fields = append(fields, verr.For("email_id")...)
	} else {
		fields = append(fields, missing("email_id"))
	}
	if !values.Has("subject_substring") {
		fields = append(fields, missing("subject_substring"))
	}
	if parseErr != nil {
		fields = append(fields, *parseErr)
	} else {
		fields = append(fields, verr.For("max_results")...)
	}

	if len(fields) > 0 {
		return scrape.Query{}, &scrape.ValidationError{Fields: fields}
	}

	return q, nil
}

func missing(field string) scrape.FieldError {
	return scrape.FieldError{Field: field, Msg: "Field required", Type: "missing"}
}

func validationResponse(verr *scrape.ValidationError) ValidationResponse {
	resp := ValidationResponse{Detail: make([]ValidationDetail, 0, len(verr.Fields))}
	for _, f := range verr.Fields {
		resp.Detail = append(resp.Detail, ValidationDetail{
			Loc:  []string{"query", f.Field},
			Msg:  f.Msg,
			Type: f.Type,
		})
	}
	return resp
}

// Healthz answers liveness probes.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
