package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoDeviceClaim is returned when an access token carries no device_id claim.
var ErrNoDeviceClaim = errors.New("session: access token has no device_id claim")

// accessClaims mirrors the backend's access-token claims the agent reads.
type accessClaims struct {
	jwt.RegisteredClaims
	OrgID    string `json:"org_id"`
	DeviceID string `json:"device_id"`
}

// DeviceIDFromToken extracts the device_id claim from an access token without
// verifying the signature. The agent holds no verification key; the backend
// remains the authority on token validity.
func DeviceIDFromToken(token string) (string, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("session: parse access token: %w", err)
	}
	if claims.DeviceID == "" {
		return "", ErrNoDeviceClaim
	}
	return claims.DeviceID, nil
}
