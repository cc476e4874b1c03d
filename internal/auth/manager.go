package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"pointtbridge/internal/idgen"
)

// State describes the token lifecycle of one device session.
type State int

const (
	StateUnauthenticated State = iota
	StateValid
	StateRefreshing
	StateAuthFailed
)

// String returns the state name for logging and the status API.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateValid:
		return "valid"
	case StateRefreshing:
		return "refreshing"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Token is the credential for one device session. It is replaced wholesale on
// every exchange or refresh, never mutated field by field.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Usable reports whether the access token is still good for a new request,
// keeping the given safety margin before the actual expiry.
func (t Token) Usable(margin time.Duration) bool {
	return t.AccessToken != "" && time.Until(t.ExpiresAt) > margin
}

// TokenStore persists the current token across restarts so the engine can
// start without re-running the browser flow. Implemented by the storage layer.
type TokenStore interface {
	LoadToken(ctx context.Context) (*Token, error)
	SaveToken(ctx context.Context, token *Token) error
}

// Config contains OAuth endpoint settings. Zero values fall back to the
// vendor defaults.
type Config struct {
	ClientID     string
	LoginURL     string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	ExpiryMargin time.Duration
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes()
	}
	if c.ExpiryMargin <= 0 {
		c.ExpiryMargin = 60 * time.Second
	}
}

// loginAttempt is the in-flight browser login: one PKCE pair plus the
// state/nonce it was issued with. Consumed exactly once.
type loginAttempt struct {
	pkce  PKCE
	state string
	nonce string
}

// Manager owns the token for one device and performs the code and refresh
// exchanges against the token endpoint. At most one refresh is ever in
// flight; concurrent callers share its result.
type Manager struct {
	cfg        Config
	oauth      *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	state State
	token Token
	login *loginAttempt

	refreshGroup singleflight.Group
}

// NewManager creates a token manager. store may be nil when persistence is
// handled elsewhere (tests, the login utility before a database exists).
// TLS transport setup happens here, once, not per request.
func NewManager(cfg Config, store TokenStore, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.TokenURL,
				// The vendor IdP takes client_id in the form body; pinning
				// the style also stops the library from probing with a
				// second request on failures.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: logger,
		state:  StateUnauthenticated,
	}
}

// Restore loads a persisted token, if any, and enters Valid state with it.
// An expired persisted token is fine: the first Token call refreshes it.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	token, err := m.store.LoadToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted token: %w", err)
	}
	if token == nil || token.RefreshToken == "" {
		return nil
	}

	m.mu.Lock()
	m.token = *token
	m.state = StateValid
	m.mu.Unlock()

	m.logger.Info("Restored persisted token",
		"component", "auth",
		"expires_at", token.ExpiresAt)
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentToken returns the held token without triggering a refresh. The
// second result is false when no token is held.
func (m *Manager) CurrentToken() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token.AccessToken == "" && m.token.RefreshToken == "" {
		return Token{}, false
	}
	return m.token, true
}

// Token returns a token usable for a new request, refreshing first when the
// held one is within the expiry margin. Concurrent callers during a refresh
// all wait on the single in-flight exchange: refresh tokens rotate on use, so
// a duplicate call would invalidate the token everyone else is waiting on.
func (m *Manager) Token(ctx context.Context) (Token, error) {
	m.mu.Lock()
	switch m.state {
	case StateAuthFailed:
		m.mu.Unlock()
		return Token{}, fmt.Errorf("session is dead: %w", ErrReauthRequired)
	case StateUnauthenticated:
		m.mu.Unlock()
		return Token{}, fmt.Errorf("no token held: %w", ErrReauthRequired)
	}

	token := m.token
	if token.Usable(m.cfg.ExpiryMargin) {
		m.mu.Unlock()
		return token, nil
	}

	m.state = StateRefreshing
	m.mu.Unlock()

	return m.refresh(ctx)
}

// ForceRefresh performs a refresh exchange regardless of the held token's
// expiry. Used by the HTTP client after a 401/403 response.
func (m *Manager) ForceRefresh(ctx context.Context) (Token, error) {
	m.mu.Lock()
	if m.state == StateAuthFailed {
		m.mu.Unlock()
		return Token{}, fmt.Errorf("session is dead: %w", ErrReauthRequired)
	}
	if m.state == StateUnauthenticated {
		m.mu.Unlock()
		return Token{}, fmt.Errorf("no token held: %w", ErrReauthRequired)
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	return m.refresh(ctx)
}

// refresh collapses concurrent refresh requests into one exchange.
func (m *Manager) refresh(ctx context.Context) (Token, error) {
	result, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return Token{}, err
	}
	return result.(Token), nil
}

func (m *Manager) doRefresh(ctx context.Context) (Token, error) {
	m.mu.Lock()
	refreshToken := m.token.RefreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		m.setAuthFailed()
		return Token{}, fmt.Errorf("no refresh token held: %w", ErrReauthRequired)
	}

	src := m.oauth.TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return Token{}, m.classifyRefreshError(err)
	}

	token := Token{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    refreshed.Expiry,
	}
	// Some token endpoints only rotate the refresh token sometimes; keep the
	// old one when the response carries none.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	m.mu.Lock()
	m.token = token
	m.state = StateValid
	m.mu.Unlock()

	m.logger.Debug("Access token refreshed",
		"component", "auth",
		"expires_at", token.ExpiresAt)

	m.persist(ctx, token)
	return token, nil
}

// classifyRefreshError decides between a dead session and a hiccup. A
// rejected refresh token (invalid_grant, 400/401) kills the session; anything
// else keeps the old token so the next cycle can retry.
func (m *Manager) classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		code := retrieveErr.ErrorCode

		if status == http.StatusBadRequest || status == http.StatusUnauthorized ||
			code == "invalid_grant" || code == "invalid_token" {
			m.setAuthFailed()
			m.logger.Warn("Refresh token rejected",
				"component", "auth",
				"status", status,
				"oauth_error", code)
			return fmt.Errorf("refresh token rejected: %w", ErrReauthRequired)
		}

		m.setValid()
		return fmt.Errorf("token endpoint returned status %d: %w", status, ErrTransient)
	}

	m.setValid()
	return fmt.Errorf("refresh request failed: %v: %w", err, ErrTransient)
}

// ExchangeCode performs the one-shot authorization-code exchange. A remote
// rejection is terminal for the attempt; the caller restarts the browser flow.
func (m *Manager) ExchangeCode(ctx context.Context, code, verifier string) (Token, error) {
	exchanged, err := m.oauth.Exchange(m.httpContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			m.logger.Warn("Code exchange rejected",
				"component", "auth",
				"status", status,
				"oauth_error", retrieveErr.ErrorCode)
			return Token{}, fmt.Errorf("token endpoint rejected code (status %d): %w", status, ErrAuthExchange)
		}
		return Token{}, fmt.Errorf("code exchange request failed: %v: %w", err, ErrTransient)
	}

	if exchanged.AccessToken == "" || exchanged.RefreshToken == "" {
		return Token{}, fmt.Errorf("token response missing access or refresh token: %w", ErrAuthExchange)
	}

	token := Token{
		AccessToken:  exchanged.AccessToken,
		RefreshToken: exchanged.RefreshToken,
		ExpiresAt:    exchanged.Expiry,
	}

	m.mu.Lock()
	m.token = token
	m.state = StateValid
	m.mu.Unlock()

	m.logger.Info("Authorization code exchanged",
		"component", "auth",
		"expires_at", token.ExpiresAt)

	m.persist(ctx, token)
	return token, nil
}

// ReplaceToken injects a freshly obtained token and returns to Valid. Used by
// the re-authentication flow.
func (m *Manager) ReplaceToken(ctx context.Context, token Token) {
	m.mu.Lock()
	m.token = token
	m.state = StateValid
	m.mu.Unlock()

	m.persist(ctx, token)
}

// BeginLogin starts a browser login attempt: generates a fresh PKCE pair and
// state/nonce, remembers them, and returns the URL the user opens. Starting a
// new attempt discards any previous unconsumed pair.
func (m *Manager) BeginLogin() string {
	attempt := &loginAttempt{
		pkce:  NewPKCE(),
		state: idgen.New(),
		nonce: idgen.New(),
	}

	m.mu.Lock()
	m.login = attempt
	m.mu.Unlock()

	return m.buildAuthorizeURL(attempt.pkce.Challenge, attempt.state, attempt.nonce)
}

// CompleteLogin extracts the code from the pasted callback URL and exchanges
// it with the pending attempt's verifier. The pair is consumed whether or not
// the exchange succeeds, so it can never be replayed.
func (m *Manager) CompleteLogin(ctx context.Context, callbackURL string) error {
	m.mu.Lock()
	attempt := m.login
	m.login = nil
	m.mu.Unlock()

	if attempt == nil {
		return fmt.Errorf("no login attempt in progress: %w", ErrAuthExchange)
	}

	code, err := ExtractCode(callbackURL)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrAuthExchange)
	}

	_, err = m.ExchangeCode(ctx, code, attempt.pkce.Verifier)
	return err
}

func (m *Manager) setAuthFailed() {
	m.mu.Lock()
	m.state = StateAuthFailed
	m.mu.Unlock()
}

func (m *Manager) setValid() {
	m.mu.Lock()
	if m.state == StateRefreshing {
		m.state = StateValid
	}
	m.mu.Unlock()
}

// persist saves the token best-effort; a storage failure is logged but does
// not fail the exchange, the token is already held in memory.
func (m *Manager) persist(ctx context.Context, token Token) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveToken(ctx, &token); err != nil {
		m.logger.Warn("Failed to persist token",
			"component", "auth",
			"error", err)
	}
}

// httpContext routes oauth2 exchanges through the manager's HTTP client.
func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
