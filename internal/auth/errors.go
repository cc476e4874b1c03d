package auth

import "errors"

var (
	// ErrAuthExchange means the token endpoint rejected the authorization
	// code (expired, already used, or verifier mismatch). The attempt is
	// over; the user has to run the browser login again.
	ErrAuthExchange = errors.New("authorization code exchange rejected")

	// ErrReauthRequired means the session is dead: the refresh token was
	// rejected, or a request still got 401/403 after a forced refresh.
	// Callers must start a new login flow, not retry.
	ErrReauthRequired = errors.New("re-authentication required")

	// ErrTransient covers timeouts, connection resets and 5xx responses.
	// The existing token stays valid; the next cycle retries naturally.
	ErrTransient = errors.New("temporary cloud failure")
)
