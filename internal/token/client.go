package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const maxResponseBody = 64 << 10

type request struct {
	Identity domain.Identity `json:"identity"`
	Room     domain.RoomName `json:"room"`
}

type response struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Client asks the token service for a credential. It never retries; the caller owns retry policy.
type Client struct {
	Endpoint string
	// WSURL is the media server signaling URL handed back with every credential.
	WSURL string
	HTTP  *http.Client
}

func NewClient(endpoint, wsURL string) *Client {
	return &Client{
		Endpoint: endpoint,
		WSURL:    wsURL,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) RequestCredential(ctx context.Context, identity domain.Identity, room domain.RoomName) (domain.Credential, error) {
	if c.Endpoint == "" || c.WSURL == "" {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenMissingConfig, Err: errors.New("token endpoint or server url not set")}
	}

	body, err := json.Marshal(request{Identity: identity, Room: room})
	if err != nil {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenMissingConfig, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenMissingConfig, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenNetworkFailure, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenNetworkFailure, Err: err}
	}
	var out response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		log.Warn().Str("module", "token").Int("status", resp.StatusCode).Str("error", msg).Msg("token rejected")
		if resp.StatusCode == http.StatusInternalServerError && msg == ErrMissingKeys.Error() {
			// The service has no keys; asking again will not help.
			return domain.Credential{}, &core.TokenError{Reason: core.TokenMissingConfig, Status: resp.StatusCode, Err: errors.New(msg)}
		}
		return domain.Credential{}, &core.TokenError{Reason: core.TokenServerRejected, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenServerRejected, Status: resp.StatusCode, Err: fmt.Errorf("malformed token response: %w", decodeErr)}
	}
	if out.Token == "" {
		return domain.Credential{}, &core.TokenError{Reason: core.TokenServerRejected, Status: resp.StatusCode, Err: errors.New("empty token")}
	}

	log.Debug().Str("module", "token").Str("identity", string(identity)).Str("room", string(room)).Msg("credential received")
	return domain.Credential{WSURL: c.WSURL, Token: out.Token}, nil
}
