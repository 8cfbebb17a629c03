package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNotify_PostsTextPayload(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL)
	s.httpc = srv.Client()
	if err := s.Notify(context.Background(), "hello ops"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Text != "hello ops" {
		t.Fatalf("payload text = %q", got.Text)
	}
}

func TestNotify_DisabledSenderIsNoop(t *testing.T) {
	s := NewSender("")
	if s.Enabled() {
		t.Fatalf("empty URL must disable the sender")
	}
	if err := s.Notify(context.Background(), "dropped"); err != nil {
		t.Fatalf("disabled sender must not error: %v", err)
	}
}

func TestNotify_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	s := NewSender(srv.URL)
	s.httpc = srv.Client()
	if err := s.Notify(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestFormatIssue(t *testing.T) {
	line := FormatIssue("Acme", "low_reply_rate", "reply rate below threshold", 0.004, 0.01)
	if !strings.Contains(line, "Low Reply Rate") {
		t.Fatalf("label not title-cased: %q", line)
	}
	if !strings.Contains(line, "Acme") || !strings.Contains(line, "0.40%") || !strings.Contains(line, "1.00%") {
		t.Fatalf("line missing details: %q", line)
	}

	plain := FormatIssue("Acme", "webhook_silent", "no webhook activity inside the window", 0, 0)
	if strings.Contains(plain, "%") && strings.Contains(plain, "vs") {
		t.Fatalf("thresholdless issue must omit percentages: %q", plain)
	}
}
