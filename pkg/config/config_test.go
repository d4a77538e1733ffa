package config

import (
	"testing"
	"time"
)

func TestEnvDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"8s", 8 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"12", 12 * time.Second},
		{"soon", 5 * time.Second},
	}
	for _, tt := range cases {
		t.Setenv("TEST_DURATION", tt.raw)
		if got := envDuration("TEST_DURATION", 5*time.Second); got != tt.want {
			t.Fatalf("envDuration(%q)=%v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestEnvList_TrimsAndSkipsEmpty(t *testing.T) {
	t.Setenv("TEST_LIST", " https://a.example , ,http://localhost:3000 ")
	got := envList("TEST_LIST", "")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "http://localhost:3000" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoad_PortFallback(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_BASE_URL", "http://backend.local/api/")
	cfg := Load()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("http addr: %q", cfg.HTTPAddr)
	}
	if cfg.Backend.BaseURL != "http://backend.local/api" {
		t.Fatalf("backend base url: %q", cfg.Backend.BaseURL)
	}
}
