package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"
)

// SessionCookie is the name of the login session cookie.
const SessionCookie = "milltrack_session"

// SessionDuration is how long a session lives without activity
// extending it.
const SessionDuration = 24 * time.Hour

// NewSessionToken returns a random 64-character hex token.
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateSession stores a new session for the user and returns its token.
func CreateSession(db *sql.DB, userID int) (string, error) {
	token, err := NewSessionToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(SessionDuration)
	_, err = db.Exec(
		"INSERT INTO sessions (token, user_id, created_at, expires_at, last_activity) VALUES (?, ?, CURRENT_TIMESTAMP, ?, CURRENT_TIMESTAMP)",
		token, userID, expires.Format("2006-01-02 15:04:05"))
	if err != nil {
		return "", err
	}
	return token, nil
}

// DeleteSession removes a session by token.
func DeleteSession(db *sql.DB, token string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// PurgeExpiredSessions removes sessions past their expiry.
func PurgeExpiredSessions(db *sql.DB) error {
	_, err := db.Exec("DELETE FROM sessions WHERE expires_at <= CURRENT_TIMESTAMP")
	return err
}
