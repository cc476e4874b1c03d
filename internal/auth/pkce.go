package auth

import "golang.org/x/oauth2"

// PKCE holds a code verifier and its S256 challenge for one authorization
// attempt. A pair is created per attempt, consumed exactly once at code
// exchange, and never persisted.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a cryptographically random verifier and derives its
// challenge. Panics only if the system randomness source is unavailable.
func NewPKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}
