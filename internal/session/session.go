// Package session holds the agent's single authenticated session and its secure store.
package session

import "errors"

// ErrNoAccessToken is returned when a session carries a refresh token but no
// access token; such a session is never persisted.
var ErrNoAccessToken = errors.New("session: refresh token without access token")

// User is the backend user profile embedded in the session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	OrgID string `json:"org_id"`
}

// Session is the one authenticated session the agent holds. Mutated only by
// login, refresh, and logout; destroyed on logout.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	OrgID        string `json:"org_id"`
	User         User   `json:"user"`
	DeviceID     string `json:"device_id"`
}

// Validate rejects sessions that would strand a refresh token without an
// access token; a successful refresh always rotates both together.
func (s *Session) Validate() error {
	if s.AccessToken == "" && s.RefreshToken != "" {
		return ErrNoAccessToken
	}
	return nil
}
