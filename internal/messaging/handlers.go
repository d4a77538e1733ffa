package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"umrahlink/internal/api"
	"umrahlink/pkg/backend"
)

type Backend interface {
	GetThread(ctx context.Context, token string, threadID int64) (*backend.Thread, error)
	ListMessages(ctx context.Context, token string, threadID int64, page int) (*backend.Page[backend.Message], error)
	SendMessage(ctx context.Context, token string, threadID int64, body string) (*backend.Message, error)
}

type Handlers struct {
	Backend Backend
	Stream  StreamConfig
	Log     *zap.Logger
}

func (h Handlers) Mount(r chi.Router) {
	r.Route("/threads/{id}", func(r chi.Router) {
		r.Get("/", h.GetThread)
		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.SendMessage)
		r.Get("/stream", h.StreamMessages)
	})
}

func (h Handlers) GetThread(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := threadID(w, r)
	if !ok {
		return
	}
	t, err := h.Backend.GetThread(r.Context(), s.Token, id)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, t)
}

func (h Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := threadID(w, r)
	if !ok {
		return
	}
	items, err := h.messagesAfter(r.Context(), s.Token, id, 0)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}
	if items == nil {
		items = []backend.Message{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

// messagesAfter returns the thread's messages with an id above after, ascending. The backend pages
// threads oldest first, so new messages live on the last page.
func (h Handlers) messagesAfter(ctx context.Context, token string, threadID, after int64) ([]backend.Message, error) {
	msgs, err := backend.Tail(ctx, func(ctx context.Context, page int) (*backend.Page[backend.Message], error) {
		return h.Backend.ListMessages(ctx, token, threadID, page)
	}, func(m backend.Message) bool { return m.ID > after })
	if err != nil {
		return nil, err
	}
	return sortedByID(msgs), nil
}

type SendRequest struct {
	Body string `json:"body"`
}

func (h Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := threadID(w, r)
	if !ok {
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "invalid json")
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "body is required")
		return
	}

	msg, err := h.Backend.SendMessage(r.Context(), s.Token, id, body)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, msg)
}

func threadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "invalid thread id")
		return 0, false
	}
	return id, true
}

func (h Handlers) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
