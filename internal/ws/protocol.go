package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgnsrekt/segstream/internal/frame"
)

// Feed groups. Every client starts in GroupOutcomes.
const (
	GroupOutcomes = "outcomes" // every frame outcome
	GroupFailures = "failures" // failed frame outcomes only
	GroupBatches  = "batches"  // one summary per processed batch
)

var validGroups = map[string]bool{GroupOutcomes: true, GroupFailures: true, GroupBatches: true}

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

type upstreamMessage struct {
	Type  string  `json:"type"`
	Group string  `json:"group"`
	AckID *uint64 `json:"ackId"`
}

// BatchSummary is published to GroupBatches.
type BatchSummary struct {
	Frames    int       `json:"frames"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	FirstSeq  uint64    `json:"first_frame_id"`
	LastSeq   uint64    `json:"last_frame_id"`
	At        time.Time `json:"at"`
}

func summarize(outcomes []frame.Outcome) BatchSummary {
	s := BatchSummary{Frames: len(outcomes), At: time.Now()}
	s.Succeeded, s.Failed = frame.Tally(outcomes)
	for i, o := range outcomes {
		if i == 0 || o.Seq < s.FirstSeq {
			s.FirstSeq = o.Seq
		}
		if o.Seq > s.LastSeq {
			s.LastSeq = o.Seq
		}
	}
	return s
}

func parseUpstreamMessage(data []byte) (any, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	switch msg.Type {
	case "joinGroup":
		return &joinGroupRequest{group: msg.Group, ackID: msg.AckID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: msg.Group, ackID: msg.AckID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

func buildConnectedMessage(connectionID string) []byte {
	return mustMarshal(map[string]any{
		"type":         "system",
		"event":        "connected",
		"connectionId": connectionID,
	})
}

func buildAckMessage(ackID uint64, success bool) []byte {
	return mustMarshal(map[string]any{
		"type":    "ack",
		"ackId":   ackID,
		"success": success,
	})
}

func buildPongMessage() []byte {
	return mustMarshal(map[string]any{"type": "pong"})
}

func buildDataMessage(group string, payload any) []byte {
	return mustMarshal(map[string]any{
		"type":  "message",
		"group": group,
		"data":  payload,
	})
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("ws: marshal %T: %v", v, err))
	}
	return data
}
