package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
)

// pagedMessages serves n messages of one thread the way the backend paginates them: oldest first,
// pageSize per page, 404 past the end.
func pagedMessages(t *testing.T, n, pageSize int, requested *[]int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messaging/messages/" || r.URL.Query().Get("thread") != "3" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			page, _ = strconv.Atoi(p)
		}
		*requested = append(*requested, page)

		start := (page - 1) * pageSize
		if start >= n && n > 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Invalid page."}`))
			return
		}
		end := min(start+pageSize, n)
		out := Page[Message]{Count: n, Results: []Message{}}
		for id := start + 1; id <= end; id++ {
			out.Results = append(out.Results, Message{ID: int64(id), Thread: 3, Body: fmt.Sprintf("m%d", id)})
		}
		if end < n {
			next := fmt.Sprintf("http://backend/api/messaging/messages/?page=%d&thread=3", page+1)
			out.Next = &next
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func ids(msgs []Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestTail_ReadsPastFirstPage(t *testing.T) {
	cases := []struct {
		name      string
		total     int
		after     int64
		wantFirst int64
		wantLast  int64
		wantLen   int
		wantPages []int
	}{
		{name: "single page", total: 7, after: 0, wantFirst: 1, wantLast: 7, wantLen: 7, wantPages: []int{1}},
		{name: "new messages on second page", total: 25, after: 20, wantFirst: 21, wantLast: 25, wantLen: 5, wantPages: []int{1, 2}},
		{name: "cursor on first page", total: 25, after: 18, wantFirst: 19, wantLast: 25, wantLen: 7, wantPages: []int{1, 2}},
		{name: "whole thread", total: 45, after: 0, wantFirst: 1, wantLast: 45, wantLen: 45, wantPages: []int{1, 3, 2}},
		{name: "only the last page", total: 65, after: 61, wantFirst: 62, wantLast: 65, wantLen: 4, wantPages: []int{1, 4}},
		{name: "nothing new", total: 25, after: 25, wantLen: 0, wantPages: []int{1, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var requested []int
			c := newTestClient(t, pagedMessages(t, tc.total, 20, &requested))

			got, err := Tail(context.Background(), func(ctx context.Context, page int) (*Page[Message], error) {
				return c.ListMessages(ctx, "tok", 3, page)
			}, func(m Message) bool { return m.ID > tc.after })
			if err != nil {
				t.Fatalf("tail: %v", err)
			}
			if len(got) != tc.wantLen {
				t.Fatalf("got %d messages %v, want %d", len(got), ids(got), tc.wantLen)
			}
			if tc.wantLen > 0 && (got[0].ID != tc.wantFirst || got[len(got)-1].ID != tc.wantLast) {
				t.Fatalf("ids=%v, want %d..%d", ids(got), tc.wantFirst, tc.wantLast)
			}
			for i := 1; i < len(got); i++ {
				if got[i].ID != got[i-1].ID+1 {
					t.Fatalf("gap or disorder in %v", ids(got))
				}
			}
			if fmt.Sprint(requested) != fmt.Sprint(tc.wantPages) {
				t.Fatalf("requested pages %v, want %v", requested, tc.wantPages)
			}
		})
	}
}

func TestWalk_StopsWhenVisitDeclines(t *testing.T) {
	var requested []int
	c := newTestClient(t, pagedMessages(t, 65, 20, &requested))

	var seen []int64
	err := Walk(context.Background(), func(ctx context.Context, page int) (*Page[Message], error) {
		return c.ListMessages(ctx, "tok", 3, page)
	}, func(ms []Message) bool {
		for _, m := range ms {
			seen = append(seen, m.ID)
			if m.ID == 30 {
				return false
			}
		}
		return true
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if fmt.Sprint(requested) != "[1 2]" {
		t.Fatalf("requested pages %v", requested)
	}
	if seen[len(seen)-1] != 30 {
		t.Fatalf("last seen %d", seen[len(seen)-1])
	}
}

func TestWalk_FollowsNextToTheEnd(t *testing.T) {
	var requested []int
	c := newTestClient(t, pagedMessages(t, 45, 20, &requested))

	total := 0
	err := Walk(context.Background(), func(ctx context.Context, page int) (*Page[Message], error) {
		return c.ListMessages(ctx, "tok", 3, page)
	}, func(ms []Message) bool {
		total += len(ms)
		return true
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if total != 45 || fmt.Sprint(requested) != "[1 2 3]" {
		t.Fatalf("total=%d requested=%v", total, requested)
	}
}

func TestWalk_PageLimit(t *testing.T) {
	next := "more"
	calls := 0
	err := Walk(context.Background(), func(ctx context.Context, page int) (*Page[Dispute], error) {
		calls++
		return &Page[Dispute]{Next: &next, Results: []Dispute{{ID: int64(page)}}}, nil
	}, func([]Dispute) bool { return true })
	if !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("err=%v, want ErrTooManyPages", err)
	}
	if calls != MaxPages {
		t.Fatalf("calls=%d", calls)
	}
}

func TestListBookings_PageParam(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"count":0,"next":null,"previous":null,"results":[]}`))
	})

	for _, page := range []int{0, 1, 3} {
		if _, err := c.ListBookings(context.Background(), "tok", page); err != nil {
			t.Fatalf("list bookings page %d: %v", page, err)
		}
	}
	if fmt.Sprint(got) != "[  page=3]" {
		t.Fatalf("queries %q", got)
	}
}
