package rtc

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// identityFromToken reads the subject of the access token without verifying it.
func identityFromToken(token string) (domain.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	return domain.NewIdentity(sub)
}
