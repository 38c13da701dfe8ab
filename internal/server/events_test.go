package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStatsStream(t *testing.T) {
	var calls atomic.Int64
	stream := NewStatsStream(func() any {
		return map[string]int64{"frames_received": calls.Add(1)}
	}, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	srv := httptest.NewServer(NewRouter(Options{Events: stream.HandleSSE}, zap.NewNop()))
	defer srv.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/stats/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	event, data := readEvent(t, r)
	if event != "snapshot" || !strings.Contains(data, "frames_received") {
		t.Fatalf("expected snapshot first, got %q %q", event, data)
	}

	event, _ = readEvent(t, r)
	if event != "stats" {
		t.Fatalf("expected periodic stats event, got %q", event)
	}
	if stream.Subscribers() != 1 {
		t.Errorf("expected 1 subscriber, got %d", stream.Subscribers())
	}
}
