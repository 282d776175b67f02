package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPSenderSend(t *testing.T) {
	var got Order
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content type, got %q", ct)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode order: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret-token", 5*time.Second, nil)

	if err := s.Send(context.Background(), "recipient-addr", 150, "campaign-3-settlement"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if auth != "Bearer secret-token" {
		t.Errorf("expected bearer token header, got %q", auth)
	}
	if got.To != "recipient-addr" {
		t.Errorf("expected to=recipient-addr, got %q", got.To)
	}
	if got.Amount != 150 {
		t.Errorf("expected amount=150, got %d", got.Amount)
	}
	if got.Reference != "campaign-3-settlement" {
		t.Errorf("expected reference=campaign-3-settlement, got %q", got.Reference)
	}
}

func TestHTTPSenderNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "", 5*time.Second, nil)
	if err := s.Send(context.Background(), "addr", 1, "ref"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestHTTPSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient float", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "", 5*time.Second, nil)

	err := s.Send(context.Background(), "addr", 10, "ref")
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status code in error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient float") {
		t.Errorf("expected body excerpt in error, got: %v", err)
	}
}

func TestHTTPSenderUnreachable(t *testing.T) {
	s := NewHTTPSender("http://127.0.0.1:1/payouts", "", time.Second, nil)
	if err := s.Send(context.Background(), "addr", 10, "ref"); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	if err := rec.Send(context.Background(), "a", 5, "r1"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := rec.Send(context.Background(), "b", 7, "r2"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	sent := rec.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 payouts, got %d", len(sent))
	}
	if sent[0].To != "a" || sent[0].Amount != 5 || sent[0].Reference != "r1" {
		t.Errorf("unexpected first payout: %+v", sent[0])
	}
	if sent[1].To != "b" || sent[1].Amount != 7 || sent[1].Reference != "r2" {
		t.Errorf("unexpected second payout: %+v", sent[1])
	}
}
