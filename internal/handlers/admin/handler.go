// Package admin covers logins, user accounts, mill operators, and the
// audit trail.
package admin

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"milltrack/internal/audit"
	"milltrack/internal/auth"
	"milltrack/internal/handlers/common"
	"milltrack/internal/models"
	"milltrack/internal/response"
	"milltrack/internal/store"
	"milltrack/internal/validation"
	"milltrack/internal/websocket"
)

// Handler holds dependencies for admin handlers.
type Handler struct {
	DB      *sql.DB
	Store   *store.Store
	Hub     *websocket.Hub
	Lockout *auth.Lockout
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		response.Err(w, "username and password are required", 400)
		return
	}

	if h.Lockout.IsLocked(req.Username) {
		remaining := h.Lockout.RemainingLock(req.Username)
		response.Err(w, fmt.Sprintf("account locked, try again in %d minutes",
			int(remaining.Minutes())+1), 423)
		return
	}

	var user models.User
	var hash string
	var active int
	err := h.DB.QueryRow(`SELECT id, username, COALESCE(display_name,''), role, active, password_hash, created_at
		FROM users WHERE username = ?`, req.Username).
		Scan(&user.ID, &user.Username, &user.DisplayName, &user.Role, &active, &hash, &user.CreatedAt)
	if err != nil || !auth.CheckPassword(hash, req.Password) {
		if h.Lockout.RecordFailure(req.Username) {
			audit.Log(h.DB, h.Hub, req.Username, audit.ActionLogin, "auth", req.Username,
				"Account locked after repeated failures from "+audit.GetClientIP(r))
			response.Err(w, "account locked, try again later", 423)
			return
		}
		response.Err(w, "invalid username or password", 401)
		return
	}
	if active == 0 {
		response.Err(w, "account deactivated", 403)
		return
	}
	user.Active = true

	h.Lockout.Reset(req.Username)

	token, err := auth.CreateSession(h.DB, user.ID)
	if err != nil {
		response.Err(w, "could not create session", 500)
		return
	}

	h.DB.Exec("UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?", user.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(auth.SessionDuration),
	})

	audit.Log(h.DB, h.Hub, user.Username, audit.ActionLogin, "auth", user.Username,
		"Logged in from "+audit.GetClientIP(r))
	response.JSON(w, user)
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	username := audit.GetUsername(h.DB, r)
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		auth.DeleteSession(h.DB, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	audit.Log(h.DB, h.Hub, username, audit.ActionLogout, "auth", username, "Logged out")
	response.Message(w, "logged out")
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	var user models.User
	var active int
	err = h.DB.QueryRow(`SELECT u.id, u.username, COALESCE(u.display_name,''), u.role, u.active, u.created_at
		FROM users u JOIN sessions s ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP`, cookie.Value).
		Scan(&user.ID, &user.Username, &user.DisplayName, &user.Role, &active, &user.CreatedAt)
	if err != nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	user.Active = active != 0
	response.JSON(w, user)
}

// ListUsers handles GET /api/v1/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(`SELECT id, username, COALESCE(display_name,''), role, active, COALESCE(last_login,''), created_at
		FROM users ORDER BY username`)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		var active int
		rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &active, &u.LastLogin, &u.CreatedAt)
		u.Active = active != 0
		users = append(users, u)
	}
	response.JSON(w, users)
}

// CreateUser handles POST /api/v1/admin/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
		Password    string `json:"password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.RequireField(ve, "role", req.Role)
	validation.ValidateEnum(ve, "role", req.Role, validation.ValidUserRoles)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		response.Err(w, "could not hash password", 500)
		return
	}

	res, err := h.DB.Exec(`INSERT INTO users (username, display_name, role, active, password_hash, created_at)
		VALUES (?, ?, ?, 1, ?, CURRENT_TIMESTAMP)`,
		req.Username, req.DisplayName, req.Role, hash)
	if err != nil {
		response.Err(w, fmt.Sprintf("user %s already exists", req.Username), 400)
		return
	}
	id, _ := res.LastInsertId()

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "users", req.Username, "Created user "+req.Username)
	response.JSON(w, models.User{
		ID:          int(id),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Active:      true,
	})
}

// UpdateUser handles PUT /api/v1/admin/users/{id}: role, display name,
// active flag, and optionally a new password.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "invalid user id", 400)
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		Role        *string `json:"role"`
		Active      *bool   `json:"active"`
		Password    *string `json:"password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	var username string
	if err := h.DB.QueryRow("SELECT username FROM users WHERE id = ?", id).Scan(&username); err != nil {
		response.Err(w, "user not found", 404)
		return
	}

	if req.Role != nil {
		ve := &validation.ValidationErrors{}
		validation.ValidateEnum(ve, "role", *req.Role, validation.ValidUserRoles)
		if ve.HasErrors() {
			response.Err(w, ve.Error(), 400)
			return
		}
		h.DB.Exec("UPDATE users SET role = ? WHERE id = ?", *req.Role, id)
	}
	if req.DisplayName != nil {
		h.DB.Exec("UPDATE users SET display_name = ? WHERE id = ?", *req.DisplayName, id)
	}
	if req.Active != nil {
		active := 0
		if *req.Active {
			active = 1
		}
		h.DB.Exec("UPDATE users SET active = ? WHERE id = ?", active, id)
		if !*req.Active {
			h.DB.Exec("DELETE FROM sessions WHERE user_id = ?", id)
		}
	}
	if req.Password != nil {
		if err := auth.ValidatePasswordStrength(*req.Password); err != nil {
			response.Err(w, err.Error(), 400)
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			response.Err(w, "could not hash password", 500)
			return
		}
		h.DB.Exec("UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "users", username, "Updated user "+username)
	response.Message(w, "updated")
}

// DeleteUser handles DELETE /api/v1/admin/users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "invalid user id", 400)
		return
	}
	var username string
	if err := h.DB.QueryRow("SELECT username FROM users WHERE id = ?", id).Scan(&username); err != nil {
		response.Err(w, "user not found", 404)
		return
	}
	h.DB.Exec("DELETE FROM sessions WHERE user_id = ?", id)
	h.DB.Exec("DELETE FROM users WHERE id = ?", id)

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "users", username, "Deleted user "+username)
	response.Message(w, "deleted")
}

// ListOperators handles GET /api/v1/admin/operators with an optional
// role filter (?role=Warper).
func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	operators := store.Load[models.Operator](h.Store, store.Operators)
	role := r.URL.Query().Get("role")
	if role != "" {
		var filtered []models.Operator
		for _, op := range operators {
			for _, have := range op.Roles {
				if have == role {
					filtered = append(filtered, op)
					break
				}
			}
		}
		operators = filtered
	}
	if operators == nil {
		operators = []models.Operator{}
	}
	response.JSON(w, operators)
}

// SaveOperator handles POST /api/v1/admin/operators: upsert by name.
func (h *Handler) SaveOperator(w http.ResponseWriter, r *http.Request) {
	var op models.Operator
	if err := response.DecodeBody(r, &op); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	op.Name = strings.TrimSpace(op.Name)

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", op.Name)
	if len(op.Roles) == 0 {
		ve.Add("roles", "at least one role is required")
	}
	for _, role := range op.Roles {
		validation.ValidateEnum(ve, "roles", role, validation.ValidOperatorRoles)
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	op.Timestamp = time.Now().Format(common.TimestampLayout)
	action := audit.ActionCreate
	err := store.Update(h.Store, store.Operators, func(operators []models.Operator) ([]models.Operator, error) {
		for i, existing := range operators {
			if existing.Name == op.Name {
				operators[i] = op
				action = audit.ActionUpdate
				return operators, nil
			}
		}
		return append(operators, op), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, action, store.Operators, op.Name,
		fmt.Sprintf("Saved operator %s (%s)", op.Name, strings.Join(op.Roles, ", ")))
	response.JSON(w, op)
}

// DeleteOperator handles DELETE /api/v1/admin/operators?name=...
func (h *Handler) DeleteOperator(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		response.Err(w, "name is required", 400)
		return
	}
	removed := false
	err := store.Update(h.Store, store.Operators, func(operators []models.Operator) ([]models.Operator, error) {
		var kept []models.Operator
		for _, op := range operators {
			if op.Name == name {
				removed = true
				continue
			}
			kept = append(kept, op)
		}
		if !removed {
			return nil, fmt.Errorf("operator %s not found", name)
		}
		return kept, nil
	})
	if err != nil {
		response.Err(w, err.Error(), 404)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, store.Operators, name, "Deleted operator "+name)
	response.Message(w, "deleted")
}

// AuditLog handles GET /api/v1/admin/audit?limit=N.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := audit.Recent(h.DB, limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	response.JSON(w, entries)
}
