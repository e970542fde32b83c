package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

func TestIssuerRoundTrip(t *testing.T) {
	iss := NewIssuer("key", "secret", 0)
	assert.Equal(t, DefaultTTL, iss.TTL)

	tok, err := iss.Issue("alice", "style-consultation")
	require.NoError(t, err)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "key", claims.Issuer)
	assert.Equal(t, VideoGrant{Room: "style-consultation", RoomJoin: true, CanPublish: true, CanSubscribe: true}, claims.Video)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, time.Minute)

	other := NewIssuer("key", "another-secret", time.Hour)
	_, err = other.Verify(tok)
	assert.Error(t, err)
}

func TestIssuerExpired(t *testing.T) {
	iss := NewIssuer("key", "secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := iss.Issue("alice", "room")
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Verify(tok)
	assert.Error(t, err)
}

func TestIssuerMissingKeys(t *testing.T) {
	iss := NewIssuer("", "secret", time.Hour)
	assert.False(t, iss.Configured())
	_, err := iss.Issue("alice", "room")
	assert.ErrorIs(t, err, ErrMissingKeys)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "limits are per identity")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("alice"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.Prune())
	assert.Equal(t, 0, rl.Prune())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("alice"))
	}
}

func tokenServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&req) != nil || req.Identity == "" || req.Room == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSuccess(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, map[string]string{"token": "abc"})
	c := NewClient(srv.URL, "wss://media.example")

	cred, err := c.RequestCredential(context.Background(), "alice", "style-consultation")
	require.NoError(t, err)
	assert.Equal(t, domain.Credential{WSURL: "wss://media.example", Token: "abc"}, cred)
}

func TestClientErrors(t *testing.T) {
	cases := []struct {
		name      string
		client    func(t *testing.T) *Client
		reason    core.TokenReason
		status    int
		retryable bool
	}{
		{
			name:   "missing server url",
			client: func(t *testing.T) *Client { return NewClient("http://127.0.0.1:1", "") },
			reason: core.TokenMissingConfig,
		},
		{
			name: "server misconfigured",
			client: func(t *testing.T) *Client {
				return NewClient(tokenServer(t, http.StatusInternalServerError, map[string]string{"error": "configuration missing"}).URL, "wss://m")
			},
			reason: core.TokenMissingConfig,
			status: http.StatusInternalServerError,
		},
		{
			name: "server error",
			client: func(t *testing.T) *Client {
				return NewClient(tokenServer(t, http.StatusInternalServerError, map[string]string{"error": "database unavailable"}).URL, "wss://m")
			},
			reason:    core.TokenServerRejected,
			status:    http.StatusInternalServerError,
			retryable: true,
		},
		{
			name: "bad request",
			client: func(t *testing.T) *Client {
				return NewClient(tokenServer(t, http.StatusBadRequest, map[string]string{"error": "Missing identity or room"}).URL, "wss://m")
			},
			reason: core.TokenServerRejected,
			status: http.StatusBadRequest,
		},
		{
			name: "empty token",
			client: func(t *testing.T) *Client {
				return NewClient(tokenServer(t, http.StatusOK, map[string]string{}).URL, "wss://m")
			},
			reason: core.TokenServerRejected,
			status: http.StatusOK,
		},
		{
			name: "unreachable",
			client: func(t *testing.T) *Client {
				srv := httptest.NewServer(http.NotFoundHandler())
				url := srv.URL
				srv.Close()
				return NewClient(url, "wss://m")
			},
			reason:    core.TokenNetworkFailure,
			retryable: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.client(t).RequestCredential(context.Background(), "alice", "room")
			var te *core.TokenError
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, tc.reason, te.Reason)
			assert.Equal(t, tc.status, te.Status)
			assert.Equal(t, tc.retryable, core.Retryable(err))
		})
	}
}

func TestClientMissingConfigIsConfigurationError(t *testing.T) {
	_, err := NewClient("", "wss://m").RequestCredential(context.Background(), "alice", "room")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestClientServerWithoutKeysIsConfigurationError(t *testing.T) {
	srv := tokenServer(t, http.StatusInternalServerError, map[string]string{"error": "configuration missing"})
	_, err := NewClient(srv.URL, "wss://m").RequestCredential(context.Background(), "alice", "room")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.NotErrorIs(t, err, core.ErrNetwork)
	assert.False(t, core.Retryable(err))
	assert.Contains(t, err.Error(), "configuration missing")
}
