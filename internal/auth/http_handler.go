package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type tok interface {
	AuthorizeCode(context.Context, string, string) error
	OAuthToken() (*oauth2.Token, error)
	RedirectURL() (string, error)
}

// HTTPHandler drives the consent flow that fills the token cache the scraper
// reads from. Google calls back with either ?code or ?error.
type HTTPHandler struct {
	tok tok
	log *zap.SugaredLogger
}

// NewHTTPHandler creates an HTTP handler for OAuth2 flow.
func NewHTTPHandler(tok tok, log *zap.SugaredLogger) *HTTPHandler {
	return &HTTPHandler{tok: tok, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("redirect") != "" {
		u, err := h.tok.RedirectURL()
		if err != nil {
			h.log.Errorw("building consent url failed", "error", err)
			http.Error(w, "Unable to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	if reason := q.Get("error"); reason != "" {
		h.log.Warnw("consent declined", "reason", reason)
		http.Error(w, "Authorization declined: "+reason, http.StatusForbidden)
		return
	}

	if code := q.Get("code"); code != "" {
		if err := h.tok.AuthorizeCode(r.Context(), code, q.Get("state")); err != nil {
			h.log.Warnw("authorizing code failed", "error", err)
			http.Error(w, "Unable to authorize provided code", http.StatusBadRequest)
			return
		}
		h.log.Info("gmail access authorized")
		http.Redirect(w, r, r.URL.EscapedPath(), http.StatusFound)
		return
	}

	t, err := h.tok.OAuthToken()
	if errors.Is(err, ErrTokenNotSet) {
		http.Error(w, "Token not found", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.log.Errorw("reading token failed", "error", err)
		http.Error(w, "Token unavailable", http.StatusInternalServerError)
		return
	}

	// Without a refresh token scraping stops working once the access token expires.
	_, _ = fmt.Fprintf(w, "Token: %s, expires: %s, refreshable: %t",
		maskLeft(t.AccessToken), t.Expiry.Format(time.RFC3339), t.RefreshToken != "")
}

func maskLeft(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs)-4; i++ {
		rs[i] = 'X'
	}
	return string(rs)
}
