// Package token issues session credentials on the server side and requests them
// on the client side.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

const DefaultTTL = 24 * time.Hour

var ErrMissingKeys = errors.New("configuration missing")

// VideoGrant is what the credential allows inside the room.
type VideoGrant struct {
	Room         domain.RoomName `json:"room"`
	RoomJoin     bool            `json:"roomJoin"`
	CanPublish   bool            `json:"canPublish"`
	CanSubscribe bool            `json:"canSubscribe"`
}

type Claims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

// Issuer signs HS256 access tokens with the media server API key and secret.
type Issuer struct {
	APIKey    string
	APISecret string
	TTL       time.Duration

	now func() time.Time
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{APIKey: apiKey, APISecret: apiSecret, TTL: ttl, now: time.Now}
}

// Configured reports whether both signing credentials are present.
func (i *Issuer) Configured() bool {
	return i != nil && i.APIKey != "" && i.APISecret != ""
}

// Issue returns a token that lets identity join room with publish and subscribe rights.
func (i *Issuer) Issue(identity domain.Identity, room domain.RoomName) (string, error) {
	if !i.Configured() {
		return "", ErrMissingKeys
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.APIKey,
			Subject:   string(identity),
			ID:        string(identity),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.TTL)),
		},
		Video: VideoGrant{Room: room, RoomJoin: true, CanPublish: true, CanSubscribe: true},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.APISecret))
}

// Verify parses a token signed by this issuer.
func (i *Issuer) Verify(token string) (*Claims, error) {
	if !i.Configured() {
		return nil, ErrMissingKeys
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(i.APISecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.APIKey),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
