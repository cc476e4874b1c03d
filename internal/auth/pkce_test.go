package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPKCE(t *testing.T) {
	pair := NewPKCE()

	assert.GreaterOrEqual(t, len(pair.Verifier), 43)
	assert.LessOrEqual(t, len(pair.Verifier), 128)
	for _, r := range pair.Verifier {
		assert.Contains(t,
			"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~",
			string(r))
	}

	// The challenge must be the S256 transform of the verifier.
	sum := sha256.Sum256([]byte(pair.Verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), pair.Challenge)
}

func TestNewPKCE_PairsAreUnique(t *testing.T) {
	first := NewPKCE()
	second := NewPKCE()
	assert.NotEqual(t, first.Verifier, second.Verifier)
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantCode string
		wantErr  bool
	}{
		{
			name:     "private scheme callback",
			url:      "com.bosch.tt.dashtt.pointt://app/login?code=abc123&state=xyz",
			wantCode: "abc123",
		},
		{
			name:     "surrounding whitespace",
			url:      "  com.bosch.tt.dashtt.pointt://app/login?code=abc123\n",
			wantCode: "abc123",
		},
		{
			name:    "missing code parameter",
			url:     "com.bosch.tt.dashtt.pointt://app/login?state=xyz",
			wantErr: true,
		},
		{
			name:    "empty input",
			url:     "",
			wantErr: true,
		},
		{
			name:    "not a url",
			url:     "::::",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ExtractCode(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
