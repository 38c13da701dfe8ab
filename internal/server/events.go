package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatsStream pushes run statistics to server-sent-event subscribers at a
// fixed interval.
type StatsStream struct {
	stats    func() any
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	sequence uint64
	clients  map[*sseClient]bool
}

// sseClient represents a connected SSE subscriber.
type sseClient struct {
	dataCh  chan []byte
	flusher http.Flusher
	writer  http.ResponseWriter
}

func NewStatsStream(stats func() any, interval time.Duration, logger *zap.Logger) *StatsStream {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatsStream{
		stats:    stats,
		interval: interval,
		logger:   logger,
		clients:  make(map[*sseClient]bool),
	}
}

// Run starts the periodic broadcast loop.
func (s *StatsStream) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

// HandleSSE streams a snapshot followed by periodic "stats" events.
func (s *StatsStream) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{
		dataCh:  make(chan []byte, 10),
		flusher: flusher,
		writer:  w,
	}

	s.addClient(client)
	defer s.removeClient(client)

	s.logger.Debug("stats subscriber connected", zap.String("remote_addr", r.RemoteAddr))

	snapshot, err := s.formatEvent("snapshot", s.stats())
	if err != nil {
		s.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	if _, err := w.Write(snapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("stats subscriber disconnected", zap.String("remote_addr", r.RemoteAddr))
			return
		case eventData := <-client.dataCh:
			if _, err := client.writer.Write(eventData); err != nil {
				s.logger.Debug("failed to write to subscriber", zap.Error(err))
				return
			}
			client.flusher.Flush()
		}
	}
}

// Subscribers returns the number of connected SSE clients.
func (s *StatsStream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *StatsStream) addClient(client *sseClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *StatsStream) removeClient(client *sseClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client)
}

func (s *StatsStream) broadcast() {
	s.mu.RLock()
	clients := make([]*sseClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	eventData, err := s.formatEvent("stats", s.stats())
	if err != nil {
		s.logger.Warn("failed to encode stats", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.dataCh <- eventData:
		default:
			// Channel full, client is slow
			s.logger.Debug("subscriber channel full, dropping stats")
		}
	}
}

func (s *StatsStream) formatEvent(eventType string, data any) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sequence++
	seq := s.sequence
	s.mu.Unlock()

	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, seq, jsonData)), nil
}
