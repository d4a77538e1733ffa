package messaging

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"umrahlink/internal/api"
	"umrahlink/internal/booking"
	"umrahlink/internal/session"
	"umrahlink/pkg/backend"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	// listFn returns the whole thread, oldest first, as of the call-th first-page request.
	listFn   func(call int) ([]backend.Message, error)
	threadFn func(id int64) (*backend.Thread, error)
	// pageSize splits the thread into backend pages; zero serves it in one page.
	pageSize int
	sent     []string
}

func (f *fakeBackend) GetThread(ctx context.Context, token string, id int64) (*backend.Thread, error) {
	if f.threadFn != nil {
		return f.threadFn(id)
	}
	return &backend.Thread{ID: id, Booking: 1}, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, token string, id int64, page int) (*backend.Page[backend.Message], error) {
	f.mu.Lock()
	if page <= 1 {
		f.calls++
	}
	call, size := f.calls, f.pageSize
	f.mu.Unlock()

	msgs, err := f.listFn(call)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return &backend.Page[backend.Message]{Count: len(msgs), Results: msgs}, nil
	}
	page = max(page, 1)
	start := (page - 1) * size
	if start > 0 && start >= len(msgs) {
		return nil, &backend.APIError{Status: http.StatusNotFound, Data: map[string]any{"detail": "Invalid page."}}
	}
	end := min(start+size, len(msgs))
	out := &backend.Page[backend.Message]{Count: len(msgs), Results: msgs[start:end]}
	if end < len(msgs) {
		next := "next"
		out.Next = &next
	}
	return out, nil
}

// thread returns messages 1..n, oldest first.
func thread(n int) []backend.Message {
	out := make([]backend.Message, 0, n)
	for id := 1; id <= n; id++ {
		out = append(out, backend.Message{ID: int64(id), Thread: 12, Body: "m" + strconv.Itoa(id)})
	}
	return out
}

func (f *fakeBackend) SendMessage(ctx context.Context, token string, id int64, body string) (*backend.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	return &backend.Message{ID: 99, Thread: id, Body: body}, nil
}

func (f *fakeBackend) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestServer(t *testing.T, be Backend) *httptest.Server {
	t.Helper()
	return newClosingTestServer(t, be, nil)
}

func newClosingTestServer(t *testing.T, be Backend, closing <-chan struct{}) *httptest.Server {
	t.Helper()
	h := Handlers{Backend: be, Stream: StreamConfig{Interval: 5 * time.Millisecond, Heartbeat: time.Hour, Closing: closing}}
	s := session.Session{UserID: 4, Role: booking.RoleCustomer, Token: "bt"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(api.WithSession(req.Context(), &s)))
		})
	})
	h.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// readEvents collects "event:" and "id:" lines until want returns true or the deadline passes.
func readEvents(t *testing.T, url string, header http.Header, want func(lines []string) bool) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") || strings.HasPrefix(line, "id: ") {
			lines = append(lines, line)
		}
		if want(lines) {
			return lines
		}
	}
	t.Fatalf("stream ended before expected events: %v", lines)
	return nil
}

func contains(lines []string, s string) bool {
	for _, l := range lines {
		if l == s {
			return true
		}
	}
	return false
}

func TestStreamMessages_EmitsNewMessagesInOrder(t *testing.T) {
	be := &fakeBackend{listFn: func(call int) ([]backend.Message, error) {
		if call == 1 {
			return []backend.Message{{ID: 1, Body: "salam"}}, nil
		}
		return []backend.Message{{ID: 3, Body: "see you"}, {ID: 1, Body: "salam"}, {ID: 2, Body: "pickup at 9"}}, nil
	}}
	srv := newTestServer(t, be)

	lines := readEvents(t, srv.URL+"/threads/12/stream", nil, func(lines []string) bool {
		return contains(lines, "id: 3")
	})

	if lines[0] != "event: connected" {
		t.Fatalf("first event %q", lines[0])
	}
	var ids []string
	for _, l := range lines {
		if strings.HasPrefix(l, "id: ") {
			ids = append(ids, l)
		}
	}
	want := []string{"id: 1", "id: 2", "id: 3"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("ids=%v, want %v (each message exactly once, ascending)", ids, want)
	}
}

func TestStreamMessages_ResumesAfterLastEventID(t *testing.T) {
	be := &fakeBackend{listFn: func(int) ([]backend.Message, error) {
		return []backend.Message{{ID: 1}, {ID: 2}}, nil
	}}
	srv := newTestServer(t, be)

	lines := readEvents(t, srv.URL+"/threads/12/stream", http.Header{"Last-Event-Id": {"1"}}, func(lines []string) bool {
		return contains(lines, "id: 2")
	})
	if contains(lines, "id: 1") {
		t.Fatalf("message 1 was replayed: %v", lines)
	}
}

func TestStreamMessages_ReportsFetchErrorsAndKeepsPolling(t *testing.T) {
	be := &fakeBackend{listFn: func(call int) ([]backend.Message, error) {
		if call == 1 {
			return nil, &backend.APIError{Status: http.StatusServiceUnavailable}
		}
		return []backend.Message{{ID: 7}}, nil
	}}
	srv := newTestServer(t, be)

	lines := readEvents(t, srv.URL+"/threads/12/stream", nil, func(lines []string) bool {
		return contains(lines, "id: 7")
	})
	if !contains(lines, "event: error") {
		t.Fatalf("fetch error not reported: %v", lines)
	}
}

func TestStreamMessages_FollowsLongThreads(t *testing.T) {
	be := &fakeBackend{pageSize: 20, listFn: func(call int) ([]backend.Message, error) {
		if call == 1 {
			return thread(25), nil
		}
		return thread(27), nil
	}}
	srv := newTestServer(t, be)

	lines := readEvents(t, srv.URL+"/threads/12/stream", nil, func(lines []string) bool {
		return contains(lines, "id: 27")
	})
	var got []string
	for _, l := range lines {
		if strings.HasPrefix(l, "id: ") {
			got = append(got, strings.TrimPrefix(l, "id: "))
		}
	}
	if len(got) != 27 {
		t.Fatalf("got %d messages %v, want 27", len(got), got)
	}
	for i, id := range got {
		if id != strconv.Itoa(i+1) {
			t.Fatalf("ids=%v, want 1..27 in order", got)
		}
	}
}

func TestStreamMessages_ResumesInsideLongThread(t *testing.T) {
	be := &fakeBackend{pageSize: 20, listFn: func(int) ([]backend.Message, error) {
		return thread(43), nil
	}}
	srv := newTestServer(t, be)

	lines := readEvents(t, srv.URL+"/threads/12/stream", http.Header{"Last-Event-Id": {"41"}}, func(lines []string) bool {
		return contains(lines, "id: 43")
	})
	if contains(lines, "id: 41") || !contains(lines, "id: 42") {
		t.Fatalf("resume after 41 emitted %v", lines)
	}
}

func TestStreamMessages_DropsStaleErrors(t *testing.T) {
	be := &fakeBackend{listFn: func(call int) ([]backend.Message, error) {
		if call == 1 {
			time.Sleep(150 * time.Millisecond)
			return nil, &backend.APIError{Status: http.StatusServiceUnavailable}
		}
		return thread(2), nil
	}}
	srv := newTestServer(t, be)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/threads/12/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if l := sc.Text(); strings.HasPrefix(l, "event: ") || strings.HasPrefix(l, "id: ") {
			lines = append(lines, l)
		}
	}
	if !contains(lines, "id: 2") {
		t.Fatalf("newer fetch not emitted: %v", lines)
	}
	if contains(lines, "event: error") {
		t.Fatalf("stale failure emitted after a newer success: %v", lines)
	}
}

func TestStreamMessages_EndsWhenServerCloses(t *testing.T) {
	be := &fakeBackend{listFn: func(int) ([]backend.Message, error) {
		return thread(1), nil
	}}
	closing := make(chan struct{})
	srv := newClosingTestServer(t, be, closing)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/threads/12/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == "id: 1" {
			close(closing)
			break
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if ctx.Err() != nil {
		t.Fatalf("stream stayed open after closing")
	}
}

func TestListMessages_WholeThread(t *testing.T) {
	be := &fakeBackend{pageSize: 20, listFn: func(int) ([]backend.Message, error) {
		return thread(25), nil
	}}
	srv := newTestServer(t, be)

	resp, err := http.Get(srv.URL + "/threads/12/messages")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Count int               `json:"count"`
		Items []backend.Message `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 25 || len(out.Items) != 25 || out.Items[24].ID != 25 {
		t.Fatalf("count=%d items=%d", out.Count, len(out.Items))
	}
}

func TestStreamMessages_UnknownThread(t *testing.T) {
	be := &fakeBackend{threadFn: func(int64) (*backend.Thread, error) {
		return nil, &backend.APIError{Status: http.StatusNotFound, Data: map[string]any{"detail": "Not found."}}
	}}
	srv := newTestServer(t, be)

	resp, err := http.Get(srv.URL + "/threads/5/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestSendMessage(t *testing.T) {
	be := &fakeBackend{}
	srv := newTestServer(t, be)

	resp, err := http.Post(srv.URL+"/threads/5/messages", "application/json", strings.NewReader(`{"body":"  "}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank body status=%d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/threads/5/messages", "application/json", strings.NewReader(`{"body":"arrived at the hotel"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if sent := be.sentBodies(); len(sent) != 1 || sent[0] != "arrived at the hotel" {
		t.Fatalf("sent=%v", sent)
	}
}
