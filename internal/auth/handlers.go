package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"umrahlink/internal/api"
	"umrahlink/internal/booking"
	"umrahlink/internal/session"
	"umrahlink/pkg/backend"
)

type Backend interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error)
	LoginCustomer(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error)
	LoginProvider(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*backend.User, error)
}

type Handlers struct {
	Backend      Backend
	Issuer       session.Issuer
	CookieName   string
	SecureCookie bool
	Log          *zap.Logger
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
	// Portal selects the role-checked login: "customer", "provider", or empty for any role.
	Portal string `json:"portal"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Role      booking.Role `json:"role"`
	User      backend.User `json:"user"`
}

// RoleOf maps a backend account onto the gate's roles. Staff accounts act as admins.
func RoleOf(u backend.User) (booking.Role, error) {
	if u.IsStaff {
		return booking.RoleAdmin, nil
	}
	return booking.ParseRole(strings.ToUpper(u.Role))
}

func (h Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "invalid json")
		return
	}
	creds := backend.Credentials{
		UsernameOrEmail: strings.TrimSpace(req.UsernameOrEmail),
		Password:        req.Password,
	}
	if creds.UsernameOrEmail == "" || creds.Password == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "username_or_email and password are required")
		return
	}

	var login func(context.Context, backend.Credentials) (*backend.AuthResponse, error)
	switch strings.ToLower(strings.TrimSpace(req.Portal)) {
	case "":
		login = h.Backend.Login
	case "customer":
		login = h.Backend.LoginCustomer
	case "provider":
		login = h.Backend.LoginProvider
	default:
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "portal must be customer or provider")
		return
	}

	res, err := login(r.Context(), creds)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}

	role, err := RoleOf(res.User)
	if err != nil {
		h.logger().Error("login returned an unknown role", zap.Int64("user_id", res.User.ID), zap.String("role", res.User.Role))
		api.WriteError(w, http.StatusForbidden, api.CodeForbidden, "account role is not supported")
		return
	}

	tok, exp, err := h.Issuer.Issue(session.Session{
		UserID:   res.User.ID,
		Username: res.User.Username,
		Role:     role,
		Token:    res.Token,
	})
	if err != nil {
		h.logger().Error("issue session", zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.SecureCookie,
	})
	api.WriteJSON(w, http.StatusOK, LoginResponse{Token: tok, ExpiresAt: exp, Role: role, User: res.User})
}

// Logout revokes the backend token and clears the cookie. A backend failure is logged but the
// local session is dropped regardless.
func (h Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	if err := h.Backend.Logout(r.Context(), s.Token); err != nil {
		h.logger().Warn("backend logout", zap.Int64("user_id", s.UserID), zap.Error(err))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.SecureCookie,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h Handlers) Me(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	u, err := h.Backend.Me(r.Context(), s.Token)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"user":      u,
		"role":      s.Role,
		"expiresAt": s.ExpiresAt,
	})
}

func (h Handlers) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
