package notify

import (
	"fmt"
	"strings"
	"time"
)

// RunSummary is the final tally of one processor run.
type RunSummary struct {
	RunID     string
	Frames    uint64
	Succeeded uint64
	Failed    uint64
	Malformed uint64
	Dropped   uint64
	Batches   uint64
	OutputDir string
}

// Degraded reports whether any frame failed or arrived malformed.
func (s RunSummary) Degraded() bool {
	return s.Failed > 0 || s.Malformed > 0
}

// FormatSuccessMessage creates a success notification body.
func FormatSuccessMessage(s RunSummary, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Frames: %d in %d batches\n", s.Frames, s.Batches))
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", s.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", s.Failed))
	if s.Malformed > 0 {
		sb.WriteString(fmt.Sprintf("Malformed: %d\n", s.Malformed))
	}
	if s.Dropped > 0 {
		sb.WriteString(fmt.Sprintf("Dropped: %d\n", s.Dropped))
	}
	if s.OutputDir != "" {
		sb.WriteString(fmt.Sprintf("Output: %s\n", s.OutputDir))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(s RunSummary, duration time.Duration, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Frames: %d in %d batches\n", s.Frames, s.Batches))
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", s.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", s.Failed))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}
