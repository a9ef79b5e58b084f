// Package auth handles OAuth2 token management and persistence.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrTokenNotSet indicates no OAuth token is available.
	ErrTokenNotSet = errors.New("no token defined")
	// ErrTokenExpired indicates the token expired and cannot be refreshed.
	ErrTokenExpired = errors.New("token expired and no refresh token available")
)

// Token manages OAuth2 tokens. Load, Refresh and Persist are serialized so
// concurrent requests never refresh the same token twice.
type Token struct {
	mu         sync.Mutex
	cfg        *oauth2.Config
	token      *oauth2.Token
	store      Store
	stateStore map[string]time.Time
	log        *zap.SugaredLogger
}

// NewToken creates a Token manager and loads the cached token from store.
func NewToken(cfg *oauth2.Config, store Store, log *zap.SugaredLogger) (*Token, error) {
	t := &Token{
		cfg:        cfg,
		store:      store,
		stateStore: make(map[string]time.Time),
		log:        log,
	}

	err := t.Load()
	if errors.Is(err, ErrTokenNotSet) {
		log.Infow("no cached token, authorization required")
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("t.Load failed: %w", err)
	}

	return t, nil
}

// Load replaces the in-memory token with the one held by the store.
func (t *Token) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, err := t.store.Load()
	if err != nil {
		return err
	}
	t.token = tok

	return nil
}

// RedirectURL generates the OAuth2 authorization URL with a secure random state.
func (t *Token) RedirectURL() (string, error) {
	state, err := t.generateState()
	if err != nil {
		return "", fmt.Errorf("generateState failed: %w", err)
	}

	return t.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (t *Token) generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.stateStore[state] = now.Add(5 * time.Minute)

	for s, exp := range t.stateStore {
		if exp.Before(now) {
			delete(t.stateStore, s)
		}
	}

	return state, nil
}

func (t *Token) validateState(state string) bool {
	if state == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, exists := t.stateStore[state]
	if !exists {
		return false
	}

	delete(t.stateStore, state)

	return !time.Now().After(expiry)
}

// AuthorizeCode exchanges an authorization code for a token and persists it.
func (t *Token) AuthorizeCode(ctx context.Context, code string, state string) error {
	if !t.validateState(state) {
		return errors.New("invalid or expired state parameter")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tok, err := t.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	t.token = tok

	if err := t.store.Save(tok); err != nil {
		return fmt.Errorf("store.Save failed: %w", err)
	}

	return nil
}

// OAuthToken returns the current OAuth2 token without refreshing it.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}

	return t.token, nil
}

// Refresh returns a valid token, exchanging the refresh token when the
// current one expired. A refreshed token is written to the store.
func (t *Token) Refresh(ctx context.Context) (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}
	if t.token.Valid() {
		return t.token, nil
	}
	if t.token.RefreshToken == "" {
		return nil, ErrTokenExpired
	}

	tok, err := t.cfg.TokenSource(ctx, t.token).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	t.token = tok
	t.log.Infow("oauth token refreshed", "expiry", tok.Expiry.Format(time.RFC3339))

	if err := t.store.Save(tok); err != nil {
		t.log.Errorw("persisting refreshed token failed", "error", err)
	}

	return tok, nil
}

// TokenSource returns an oauth2.TokenSource backed by Refresh.
func (t *Token) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, t: t}
}

type tokenSource struct {
	ctx context.Context
	t   *Token
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	return s.t.Refresh(s.ctx)
}

// Persist saves the token to the store.
func (t *Token) Persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token == nil {
		return nil
	}

	if err := t.store.Save(t.token); err != nil {
		return fmt.Errorf("store.Save failed: %w", err)
	}

	return nil
}
