package admission

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestGate_AcquireSendsSlotRequest(t *testing.T) {
	var gotBody string
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer coordinator.Close()

	gate := New(coordinator.URL, 45)
	if err := gate.Acquire(context.Background(), "https://relay.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.Get(gotBody, "cooldown_seconds").Int(); got != 45 {
		t.Fatalf("cooldown_seconds = %d, want 45", got)
	}
	if got := gjson.Get(gotBody, "server_url").String(); got != "https://relay.example.com" {
		t.Fatalf("server_url = %q", got)
	}
}

func TestGate_DefaultCooldown(t *testing.T) {
	gate := New("http://127.0.0.1:1", 0)
	if gate.cooldownSeconds != DefaultCooldownSeconds {
		t.Fatalf("cooldownSeconds = %d, want %d", gate.cooldownSeconds, DefaultCooldownSeconds)
	}
}

func TestGate_RejectionIsAnError(t *testing.T) {
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no slots", http.StatusTooManyRequests)
	}))
	defer coordinator.Close()

	gate := New(coordinator.URL, 0)
	err := gate.Acquire(context.Background(), "https://relay.example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error should carry the coordinator status: %v", err)
	}
}

func TestGate_UnreachableCoordinatorFails(t *testing.T) {
	gate := New("http://127.0.0.1:1/slot", 0)
	if err := gate.Acquire(context.Background(), "https://relay.example.com"); err == nil {
		t.Fatal("expected transport error")
	}
}
