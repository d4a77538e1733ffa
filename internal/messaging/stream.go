package messaging

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"umrahlink/internal/api"
	"umrahlink/internal/poll"
	"umrahlink/pkg/backend"
)

type StreamConfig struct {
	// Interval between message fetches. The web client polled every 8s.
	Interval time.Duration
	// Heartbeat keeps idle connections open through proxies.
	Heartbeat time.Duration
	// Closing ends every open stream when closed.
	Closing <-chan struct{}
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Interval <= 0 {
		c.Interval = 8 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 25 * time.Second
	}
	return c
}

type fetched struct {
	token    uint64
	messages []backend.Message
	err      error
}

// StreamMessages handles GET /v1/threads/{id}/stream.
// Each tick fetches the thread in the background so a slow backend never blocks heartbeats; when
// fetches overlap, only the newest completion is emitted. The stream ends with the request.
func (h Handlers) StreamMessages(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := threadID(w, r)
	if !ok {
		return
	}
	if _, err := h.Backend.GetThread(r.Context(), s.Token, id); err != nil {
		api.WriteBackendError(w, err)
		return
	}

	cfg := h.Stream.withDefaults()
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Resume after the last message the client saw.
	lastSent, _ := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64)
	var cursor atomic.Int64
	cursor.Store(lastSent)

	if err := writeEvent(w, "connected", "", map[string]any{"thread": id}); err != nil {
		return
	}
	_ = rc.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var latest poll.Latest[[]backend.Message]
	results := make(chan fetched)

	go func() {
		_ = poll.Run(ctx, cfg.Interval, func(ctx context.Context) error {
			token := latest.Begin()
			go func() {
				msgs, err := h.messagesAfter(ctx, s.Token, id, cursor.Load())
				f := fetched{token: token, messages: msgs, err: err}
				select {
				case results <- f:
				case <-ctx.Done():
				}
			}()
			return nil
		}, nil)
	}()

	heartbeat := time.NewTicker(cfg.Heartbeat)
	defer heartbeat.Stop()

	log := h.logger().With(zap.Int64("thread_id", id), zap.Int64("user_id", s.UserID))
	for {
		select {
		case <-ctx.Done():
			log.Debug("message stream closed")
			return

		case <-cfg.Closing:
			log.Debug("message stream closed for shutdown")
			return

		case f := <-results:
			if f.err != nil {
				if !latest.Fail(f.token) {
					continue
				}
				log.Warn("poll messages", zap.Error(f.err))
				msg := "could not refresh messages"
				if apiErr, ok := backend.AsAPIError(f.err); ok {
					msg = apiErr.Message()
				}
				if err := writeEvent(w, "error", "", map[string]string{"message": msg}); err != nil {
					return
				}
				_ = rc.Flush()
				continue
			}
			if !latest.Commit(f.token, f.messages) {
				continue
			}
			for _, m := range f.messages {
				if m.ID <= lastSent {
					continue
				}
				if err := writeEvent(w, "message", strconv.FormatInt(m.ID, 10), m); err != nil {
					return
				}
				lastSent = m.ID
				cursor.Store(lastSent)
			}
			_ = rc.Flush()

		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w io.Writer, event, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func sortedByID(in []backend.Message) []backend.Message {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b backend.Message) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
