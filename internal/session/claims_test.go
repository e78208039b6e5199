package session

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestDeviceIDFromToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":       "u-1",
		"org_id":    "org-1",
		"device_id": "dev-42",
	})

	got, err := DeviceIDFromToken(token)
	if err != nil {
		t.Fatalf("DeviceIDFromToken: %v", err)
	}
	if got != "dev-42" {
		t.Errorf("device id = %q, want dev-42", got)
	}
}

func TestDeviceIDFromTokenMissingClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "u-1"})

	_, err := DeviceIDFromToken(token)
	if !errors.Is(err, ErrNoDeviceClaim) {
		t.Fatalf("err = %v, want ErrNoDeviceClaim", err)
	}
}

func TestDeviceIDFromTokenMalformed(t *testing.T) {
	if _, err := DeviceIDFromToken("not.a.jwt"); err == nil {
		t.Fatal("malformed token parsed without error")
	}
}
