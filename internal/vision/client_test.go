package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func TestDescribeSuccess(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"  A dog sitting on a couch.  ","done":true}`))
	}))
	defer server.Close()

	c := NewClient(DefaultConfig())
	desc, err := c.Describe(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "llava", server.URL, time.Second)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if desc != "A dog sitting on a couch." {
		t.Errorf("Expected trimmed description, got %q", desc)
	}
	if got.Model != "llava" || got.Stream || len(got.Images) != 1 || got.Images[0] != "/9j/" {
		t.Errorf("Unexpected request payload: %+v", got)
	}
	if got.Options.Temperature != DefaultTemperature || got.Prompt != DefaultPrompt {
		t.Errorf("Expected default prompt and temperature, got %+v", got)
	}
}

func TestDescribeErrors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		kind      Kind
		transient bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			kind:      KindServerError,
			transient: true,
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"model not found"}`))
			},
			kind:      KindServerError,
			transient: true,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			kind: KindMalformedResponse,
		},
		{
			name: "empty description",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"response":"   "}`))
			},
			kind: KindMalformedResponse,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			},
			kind:      KindTimeout,
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(DefaultConfig()).Describe(context.Background(), []byte("img"), "m", server.URL, 100*time.Millisecond)
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *Error, got %v", err)
			}
			if verr.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, verr.Kind)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("Expected transient=%v for %v", tt.transient, err)
			}
		})
	}
}

func TestDescribeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(DefaultConfig()).Describe(context.Background(), []byte("img"), "m", url, time.Second)
	if !IsTransient(err) {
		t.Errorf("Expected transient error for unreachable server, got %v", err)
	}
}

func TestDescribeCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := NewClient(DefaultConfig()).Describe(ctx, []byte("img"), "m", server.URL, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	var generateCalls atomic.Int32
	healthy := atomic.Bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			if !healthy.Load() {
				http.Error(w, "down", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			generateCalls.Add(1)
			_, _ = w.Write([]byte(`{"response":"ok"}`))
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.HealthCheck = true
	c := NewClient(cfg)

	if _, err := c.Describe(context.Background(), []byte("img"), "m", server.URL, time.Second); !IsTransient(err) {
		t.Errorf("Expected transient error while unhealthy, got %v", err)
	}
	if generateCalls.Load() != 0 {
		t.Error("Generate should not be called when health check fails")
	}

	healthy.Store(true)
	if _, err := c.Describe(context.Background(), []byte("img"), "m", server.URL, time.Second); err != nil {
		t.Errorf("Describe() error = %v", err)
	}
	if err := c.Ping(context.Background(), server.URL); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestRestarterCooldown(t *testing.T) {
	var runs int
	now := time.Now()
	r := NewRestarter("true", time.Minute)
	r.run = func(ctx context.Context, command string) error {
		runs++
		return nil
	}
	r.now = func() time.Time { return now }

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Restarter = r
	c := NewClient(cfg)

	for i := 0; i < 3; i++ {
		_, _ = c.Describe(context.Background(), []byte("img"), "m", server.URL, time.Second)
	}
	if runs != 1 {
		t.Errorf("Expected 1 restart within cooldown, got %d", runs)
	}

	now = now.Add(2 * time.Minute)
	_, _ = c.Describe(context.Background(), []byte("img"), "m", server.URL, time.Second)
	if runs != 2 {
		t.Errorf("Expected restart after cooldown, got %d runs", runs)
	}
}

func TestNewRestarterEmptyCommand(t *testing.T) {
	if NewRestarter("", time.Minute) != nil {
		t.Error("Expected nil restarter for empty command")
	}
}

func TestEndpoint(t *testing.T) {
	tests := map[string]string{
		"http://host:11434":  "http://host:11434/api/tags",
		"http://host:11434/": "http://host:11434/api/tags",
		"127.0.0.1:11434":    "http://127.0.0.1:11434/api/tags",
	}
	for in, want := range tests {
		if got := endpoint(in, "/api/tags"); got != want {
			t.Errorf("endpoint(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := "  model not found  "
	if got := truncate(short); got != "model not found" {
		t.Errorf("Expected trimmed body, got %q", got)
	}

	// A three-byte rune straddles the cut.
	body := strings.Repeat("a", maxErrorBody-1) + "€" + "tail"
	got := truncate(body)
	if !utf8.ValidString(got) {
		t.Fatalf("Expected valid UTF-8, got %q", got)
	}
	if got != strings.Repeat("a", maxErrorBody-1)+"..." {
		t.Errorf("Expected cut before the rune, got %q", got[len(got)-8:])
	}
}
