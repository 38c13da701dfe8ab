package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// capture records the last publication an ntfy server received.
type capture struct {
	path string
	auth string
	pub  publication
}

func ntfyServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	got := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got.pub); err != nil {
			t.Errorf("invalid publish body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestClientSendSuccess(t *testing.T) {
	srv, got := ntfyServer(t, http.StatusOK)
	client := NewClient(&Config{
		Enabled:  true,
		Server:   srv.URL + "/",
		Topic:    "frames",
		Priority: "default",
		Tags:     "camera, video",
		Token:    "secret",
	}, zap.NewNop())

	summary := RunSummary{RunID: "run-1", Frames: 25, Succeeded: 25, Batches: 3}
	if err := client.SendSuccess(context.Background(), summary, 90*time.Second); err != nil {
		t.Fatalf("SendSuccess failed: %v", err)
	}

	if got.path != "/" || got.pub.Topic != "frames" {
		t.Errorf("expected publish to server root for topic frames, got %s %q", got.path, got.pub.Topic)
	}
	if got.auth != "Bearer secret" {
		t.Errorf("unexpected auth header: %s", got.auth)
	}
	if got.pub.Title != "Run Complete: 25/25 frames" || got.pub.Priority != 3 {
		t.Errorf("unexpected title/priority: %q %d", got.pub.Title, got.pub.Priority)
	}
	if strings.Join(got.pub.Tags, ",") != "camera,video,white_check_mark" {
		t.Errorf("unexpected tags: %v", got.pub.Tags)
	}
	if !strings.Contains(got.pub.Message, "Frames: 25 in 3 batches") || !strings.Contains(got.pub.Message, "Duration: 1m30s") {
		t.Errorf("unexpected message: %s", got.pub.Message)
	}
}

func TestClientSendSuccessDegradedRaisesPriority(t *testing.T) {
	srv, got := ntfyServer(t, http.StatusOK)
	client := NewClient(&Config{Enabled: true, Server: srv.URL, Topic: "frames", Priority: "default", Tags: "camera"}, zap.NewNop())

	summary := RunSummary{Frames: 25, Succeeded: 23, Failed: 1, Malformed: 1}
	if err := client.SendSuccess(context.Background(), summary, time.Second); err != nil {
		t.Fatalf("SendSuccess failed: %v", err)
	}
	if got.pub.Title != "Run Degraded: 23/25 frames, 2 failed" {
		t.Errorf("unexpected title: %q", got.pub.Title)
	}
	if got.pub.Priority != 4 {
		t.Errorf("expected high priority (4), got %d", got.pub.Priority)
	}
	if tags := strings.Join(got.pub.Tags, ","); tags != "camera,warning" {
		t.Errorf("unexpected tags: %s", tags)
	}
}

func TestClientSendFailurePriority(t *testing.T) {
	tests := []struct {
		name         string
		configured   string
		frames       uint64
		wantPriority int
		wantTitle    string
	}{
		{"nothing processed", "low", 0, 5, "Run Failed before any frame"},
		{"partial run", "low", 7, 4, "Run Failed after 7 frames"},
		{"configured above high", "urgent", 7, 5, "Run Failed after 7 frames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := ntfyServer(t, http.StatusOK)
			client := NewClient(&Config{Enabled: true, Server: srv.URL, Topic: "frames", Priority: tt.configured}, zap.NewNop())

			err := client.SendFailure(context.Background(), RunSummary{Frames: tt.frames}, time.Second, errors.New("connection reset"))
			if err != nil {
				t.Fatalf("SendFailure failed: %v", err)
			}
			if got.pub.Priority != tt.wantPriority || got.pub.Title != tt.wantTitle {
				t.Errorf("expected %q at %d, got %q at %d", tt.wantTitle, tt.wantPriority, got.pub.Title, got.pub.Priority)
			}
			if !strings.Contains(got.pub.Message, "Error: connection reset") {
				t.Errorf("message should carry the error: %s", got.pub.Message)
			}
		})
	}
}

func TestClientRejectedStatus(t *testing.T) {
	srv, _ := ntfyServer(t, http.StatusForbidden)
	client := NewClient(&Config{Enabled: true, Server: srv.URL, Topic: "frames", Priority: "low"}, zap.NewNop())
	if err := client.SendFailure(context.Background(), RunSummary{RunID: "run-2"}, time.Second, errors.New("address in use")); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	n := New(&Config{Enabled: false}, zap.NewNop())
	if _, ok := n.(*NoopNotifier); !ok {
		t.Fatalf("expected NoopNotifier, got %T", n)
	}
	if err := n.SendSuccess(context.Background(), RunSummary{}, 0); err != nil {
		t.Errorf("noop should not fail: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"valid", Config{Enabled: true, Topic: "t", Priority: "high"}, false},
		{"missing topic", Config{Enabled: true, Priority: "high"}, true},
		{"bad priority", Config{Enabled: true, Topic: "t", Priority: "loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatFailureMessage(t *testing.T) {
	msg := FormatFailureMessage(RunSummary{Frames: 7, Succeeded: 6, Failed: 1, Batches: 1}, 2*time.Second, errors.New("boom"))
	if !strings.Contains(msg, "Failed: 1") || !strings.Contains(msg, "Error: boom") {
		t.Errorf("unexpected message: %s", msg)
	}
}
