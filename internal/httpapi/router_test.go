package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"umrahlink/internal/booking"
	"umrahlink/internal/session"
	"umrahlink/pkg/backend"
	"umrahlink/pkg/config"
)

func newRouter(t *testing.T, backendHandler http.HandlerFunc) (http.Handler, session.Issuer) {
	t.Helper()
	be := httptest.NewServer(backendHandler)
	t.Cleanup(be.Close)

	issuer := session.NewIssuer("router-test", time.Hour)
	cfg := config.Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		Session:        config.SessionConfig{CookieName: "umrahlink_session"},
	}
	return NewRouter(Dependencies{
		Cfg:     cfg,
		Log:     zap.NewNop(),
		Backend: backend.NewClient(be.URL+"/api", 2*time.Second, zap.NewNop()),
		Issuer:  issuer,
	}), issuer
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	h, issuer := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health/":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/api/auth/me/":
			_, _ = w.Write([]byte(`{"id":3,"username":"guide","role":"PROVIDER"}`))
		default:
			http.NotFound(w, r)
		}
	})

	tok, _, err := issuer.Issue(session.Session{UserID: 3, Role: booking.RoleProvider, Token: "drf"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		status int
	}{
		{"healthz", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", "", "", http.StatusOK},
		{"bookings need a session", http.MethodGet, "/v1/bookings", "", "", http.StatusUnauthorized},
		{"stream needs a session", http.MethodGet, "/v1/threads/1/stream", "", "", http.StatusUnauthorized},
		{"login validates", http.MethodPost, "/v1/auth/login", `{}`, "", http.StatusBadRequest},
		{"me with session", http.MethodGet, "/v1/auth/me", "", tok, http.StatusOK},
		{"audit is admin only", http.MethodGet, "/v1/bookings/1/audit", "", tok, http.StatusForbidden},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status=%d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRouter_ReadyzReportsBackendDown(t *testing.T) {
	h, _ := newRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _ := newRouter(t, func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodOptions, "/v1/bookings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials not allowed for the UI origin")
	}
}
