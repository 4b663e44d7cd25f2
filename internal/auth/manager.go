// Package auth guarantees a valid access token for upload calls. It refreshes
// expired access tokens from the stored refresh token and falls back to
// interactive authorization when the refresh token is rejected.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/onedrive-uploader/internal/graph"
	"github.com/tonimelisma/onedrive-uploader/internal/tokenstore"
)

// ErrInteractiveAuthRequired is returned when a new authorization code is
// needed but no human can be prompted.
var ErrInteractiveAuthRequired = errors.New("auth: interactive authorization required")

// expirySkew is subtracted from access token lifetimes so a token is never
// presented in its final minute.
const expirySkew = time.Minute

// DefaultAccessTokenLifetime applies to access tokens whose expiry is unknown.
const DefaultAccessTokenLifetime = time.Hour

// State is the token lifecycle position.
type State int

const (
	// StateNoRefreshToken means no credential is held.
	StateNoRefreshToken State = iota
	// StateAwaitingAuthorization means an interactive flow is running or is
	// required before uploads can proceed.
	StateAwaitingAuthorization
	// StateHasRefreshToken means a refresh token is held but no usable
	// access token.
	StateHasRefreshToken
	// StateHasAccessToken means a non-expired access token is cached.
	StateHasAccessToken
)

func (s State) String() string {
	switch s {
	case StateNoRefreshToken:
		return "no-refresh-token"
	case StateAwaitingAuthorization:
		return "awaiting-authorization"
	case StateHasRefreshToken:
		return "has-refresh-token"
	case StateHasAccessToken:
		return "has-access-token"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Exchanger performs the token endpoint calls. *graph.Client implements it.
type Exchanger interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Store holds the current tokens. *tokenstore.Store implements it.
type Store interface {
	Get(kind tokenstore.Kind) (tokenstore.Token, bool)
	Set(kind tokenstore.Kind, value string, expiresAt time.Time) tokenstore.Token
}

// Manager serializes every token sequence behind one mutex, so concurrent
// callers observing an expired token trigger a single refresh and at most one
// interactive flow runs at a time.
type Manager struct {
	client   Exchanger
	store    Store
	prompter Prompter
	lifetime time.Duration
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu    sync.Mutex
	state State
}

// NewManager creates a Manager. A nil prompter behaves like NoPrompter. A
// non-positive lifetime uses DefaultAccessTokenLifetime.
func NewManager(
	client Exchanger, store Store, prompter Prompter, lifetime time.Duration, logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if prompter == nil {
		prompter = NoPrompter{}
	}

	if lifetime <= 0 {
		lifetime = DefaultAccessTokenLifetime
	}

	return &Manager{
		client:   client,
		store:    store,
		prompter: prompter,
		lifetime: lifetime,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// State reports the lifecycle position as of the last operation, or as
// derived from the store when nothing has run yet.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAwaitingAuthorization {
		return m.state
	}

	if tok, ok := m.store.Get(tokenstore.KindAccess); ok && !m.expired(tok) {
		return StateHasAccessToken
	}

	if _, ok := m.store.Get(tokenstore.KindRefresh); ok {
		return StateHasRefreshToken
	}

	return StateNoRefreshToken
}

// AccessToken returns a non-expired access token, refreshing or running the
// interactive flow as needed.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.store.Get(tokenstore.KindAccess); ok && !m.expired(tok) {
		m.state = StateHasAccessToken

		return tok.Value, nil
	}

	return m.refreshLocked(ctx)
}

// ForceReauthorize runs the interactive flow after the server rejected the
// access token. If another caller already replaced the rejected token, the
// replacement is returned without prompting again.
func (m *Manager) ForceReauthorize(ctx context.Context, rejected string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.store.Get(tokenstore.KindAccess); ok && tok.Value != rejected && !m.expired(tok) {
		m.logger.Debug("access token already replaced, skipping reauthorization")

		return tok.Value, nil
	}

	m.logger.Warn("access token rejected, reauthorizing")

	return m.authorizeLocked(ctx)
}

// Authorize unconditionally runs the interactive flow and persists the result.
func (m *Manager) Authorize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.authorizeLocked(ctx)

	return err
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	rt, ok := m.store.Get(tokenstore.KindRefresh)
	if !ok {
		m.state = StateNoRefreshToken
		m.logger.Info("no refresh token held, authorization required")

		return m.authorizeLocked(ctx)
	}

	m.state = StateHasRefreshToken

	tok, err := m.client.ExchangeRefreshToken(ctx, rt.Value)
	if err != nil {
		if graph.IsAuthFailure(err) {
			m.logger.Warn("refresh token rejected, authorization required",
				slog.Int("status", graph.StatusOf(err)),
			)

			return m.authorizeLocked(ctx)
		}

		return "", fmt.Errorf("auth: refreshing access token: %w", err)
	}

	m.logger.Info("access token refreshed", slog.Time("expiry", tok.Expiry))

	return m.persistLocked(tok), nil
}

func (m *Manager) authorizeLocked(ctx context.Context) (string, error) {
	m.state = StateAwaitingAuthorization

	code, err := m.prompter.PromptCode(ctx, m.client.AuthorizationURL())
	if err != nil {
		return "", fmt.Errorf("auth: obtaining authorization code: %w", err)
	}

	tok, err := m.client.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: exchanging authorization code: %w", err)
	}

	if tok.RefreshToken == "" {
		m.logger.Warn("authorization returned no refresh token; offline_access may not be granted")
	}

	m.logger.Info("authorization complete", slog.Time("expiry", tok.Expiry))

	return m.persistLocked(tok), nil
}

// persistLocked stores the access token and, when the server rotated it, the
// refresh token.
func (m *Manager) persistLocked(tok *oauth2.Token) string {
	m.store.Set(tokenstore.KindAccess, tok.AccessToken, tok.Expiry)

	if tok.RefreshToken != "" {
		m.store.Set(tokenstore.KindRefresh, tok.RefreshToken, time.Time{})
	}

	m.state = StateHasAccessToken

	return tok.AccessToken
}

// expired reports whether tok should no longer be presented. Unknown expiry
// is measured from ObtainedAt using the configured lifetime.
func (m *Manager) expired(tok tokenstore.Token) bool {
	deadline := tok.ExpiresAt
	if !tok.HasExpiry() {
		deadline = tok.ObtainedAt.Add(m.lifetime)
	}

	return !m.nowFunc().Add(expirySkew).Before(deadline)
}
