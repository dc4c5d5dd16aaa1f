// Package audit records every mutating request to the audit_log table
// and announces changes over the WebSocket hub.
package audit

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"milltrack/internal/auth"
	"milltrack/internal/models"
	"milltrack/internal/websocket"
)

// Action constants.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionImport = "IMPORT"
	ActionExport = "EXPORT"
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"
)

// Log writes one audit entry and broadcasts the change. Audit failures
// are logged, never surfaced to the caller.
func Log(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
	if hub != nil {
		hub.BroadcastChange(module, strings.ToLower(action), recordID)
	}
}

// LogRequest logs an audit entry attributing the action to the
// session's user.
func LogRequest(db *sql.DB, hub *websocket.Hub, r *http.Request, action, module, recordID, summary string) {
	Log(db, hub, GetUsername(db, r), action, module, recordID, summary)
}

// GetUsername extracts the username from a session cookie.
func GetUsername(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// Recent returns the newest audit entries, most recent first.
func Recent(db *sql.DB, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT id, username, action, module, record_id, summary, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
