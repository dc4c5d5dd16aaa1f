package server

import (
	"database/sql"

	"milltrack/internal/auth"
	"milltrack/internal/config"
	"milltrack/internal/store"
	"milltrack/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxUserID   ContextKey = "userID"
	CtxUsername ContextKey = "username"
	CtxRole     ContextKey = "role"
)

// App holds shared dependencies for the application.
type App struct {
	DB      *sql.DB
	Store   *store.Store
	Hub     *websocket.Hub
	Config  *config.Config
	Lockout *auth.Lockout
}
