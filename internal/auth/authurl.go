package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Defaults for the Bosch SingleKey ID identity provider. All of them can be
// overridden through Config for testing or endpoint changes.
const (
	DefaultLoginURL    = "https://singlekey-id.com/auth/en-us/login"
	DefaultTokenURL    = "https://singlekey-id.com/auth/connect/token"
	DefaultClientID    = "762162C0-FA2D-4540-AE66-6489F189FADC"
	DefaultRedirectURI = "com.bosch.tt.dashtt.pointt://app/login"
)

// DefaultScopes returns the scope set the vendor app requests.
func DefaultScopes() []string {
	return []string{
		"openid",
		"email",
		"profile",
		"offline_access",
		"pointt.gateway.claiming",
		"pointt.gateway.removal",
		"pointt.gateway.list",
		"pointt.gateway.users",
		"pointt.gateway.resource.dashapp",
		"pointt.castt.flow.token-exchange",
		"bacon",
	}
}

// buildAuthorizeURL constructs the browser login URL. The identity provider
// expects the authorize-callback query wrapped in a ReturnUrl parameter of
// the login page rather than a direct /authorize request.
func (m *Manager) buildAuthorizeURL(challenge, state, nonce string) string {
	inner := url.Values{}
	inner.Set("client_id", m.cfg.ClientID)
	inner.Set("redirect_uri", m.cfg.RedirectURI)
	inner.Set("response_type", "code")
	inner.Set("prompt", "login")
	inner.Set("suppressed_prompt", "login")
	inner.Set("style_id", "tt_bsch")
	inner.Set("state", state)
	inner.Set("nonce", nonce)
	inner.Set("scope", strings.Join(m.cfg.Scopes, " "))
	inner.Set("code_challenge", challenge)
	inner.Set("code_challenge_method", "S256")

	outer := url.Values{}
	outer.Set("ReturnUrl", "/auth/connect/authorize/callback?"+inner.Encode())

	return m.cfg.LoginURL + "?" + outer.Encode()
}

// ExtractCode pulls the authorization code out of a pasted or captured
// redirect URL (private scheme, e.g. com.bosch.tt.dashtt.pointt://app/login?code=...).
// The URL itself is never logged or stored.
func ExtractCode(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("callback URL is empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse callback URL: %w", err)
	}

	code := parsed.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("callback URL contains no code parameter")
	}

	return code, nil
}
