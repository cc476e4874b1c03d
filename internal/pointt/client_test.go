package pointt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointtbridge/internal/auth"
)

// fakeTokens is a recording TokenProvider. After a forced refresh it hands
// out refreshed tokens, or fails with the configured error.
type fakeTokens struct {
	tokenCalls   atomic.Int64
	refreshCalls atomic.Int64
	refreshErr   error
	refreshed    atomic.Bool
}

func (f *fakeTokens) Token(ctx context.Context) (auth.Token, error) {
	f.tokenCalls.Add(1)
	if f.refreshed.Load() {
		return auth.Token{AccessToken: "fresh-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return auth.Token{AccessToken: "stale-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) ForceRefresh(ctx context.Context) (auth.Token, error) {
	f.refreshCalls.Add(1)
	if f.refreshErr != nil {
		return auth.Token{}, f.refreshErr
	}
	f.refreshed.Store(true)
	return auth.Token{AccessToken: "fresh-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newTestClient(serverURL string, tokens TokenProvider) *Client {
	return NewClient(Config{
		BaseURL:  serverURL,
		DeviceID: "101506113",
	}, tokens, nil)
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/101506113/resource/gateway", r.URL.Path)
		assert.Equal(t, "Bearer stale-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "/gateway",
			"value": "ok",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, &fakeTokens{})

	value, err := client.Get(context.Background(), "/gateway")
	require.NoError(t, err)
	assert.Equal(t, "/gateway", value["id"])
}

func TestClient_Get_RefreshesOnceOn401(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "/gateway"})
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	client := newTestClient(server.URL, tokens)

	value, err := client.Get(context.Background(), "/gateway")
	require.NoError(t, err)
	assert.Equal(t, "/gateway", value["id"])
	assert.Equal(t, int64(2), requests.Load(), "one original call plus one retry")
	assert.Equal(t, int64(1), tokens.refreshCalls.Load(), "exactly one forced refresh")
}

func TestClient_Get_SecondAuthFailureIsTerminal(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	client := newTestClient(server.URL, tokens)

	_, err := client.Get(context.Background(), "/gateway")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrReauthRequired)
	assert.Equal(t, int64(2), requests.Load(), "no retries beyond the single forced refresh")
	assert.Equal(t, int64(1), tokens.refreshCalls.Load())
}

func TestClient_Get_RefreshFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{
		refreshErr: fmt.Errorf("refresh token rejected: %w", auth.ErrReauthRequired),
	}
	client := newTestClient(server.URL, tokens)

	_, err := client.Get(context.Background(), "/gateway")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrReauthRequired)
}

func TestClient_Get_ServerErrorIsTransient(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	client := newTestClient(server.URL, tokens)

	_, err := client.Get(context.Background(), "/gateway")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTransient)
	assert.Equal(t, int64(1), requests.Load(), "transient failures are not retried in the client")
	assert.Equal(t, int64(0), tokens.refreshCalls.Load())
}

func TestClient_Get_ConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client := newTestClient(server.URL, &fakeTokens{})

	_, err := client.Get(context.Background(), "/gateway")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTransient)
}

func TestClient_Put(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "/101506113/resource/zones/zn1/setpoint", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 21.5, body["value"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &fakeTokens{})

	value, err := client.Put(context.Background(), "/zones/zn1/setpoint", 21.5)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestClient_Put_RefreshesOnceOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	client := newTestClient(server.URL, tokens)

	_, err := client.Put(context.Background(), "/zones/zn1/setpoint", 20.0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokens.refreshCalls.Load())
}
