package dto

import (
	"fmt"
	"math"
	"time"

	"github.com/erp/pos/internal/domain/scanner"
)

// MaxTimestampMs bounds timestamp_ms so it fits a time.Duration (about 292 years)
const MaxTimestampMs = 9_000_000_000_000

// KeyEventRequest is one key press as reported by a terminal
type KeyEventRequest struct {
	Key string `json:"key" binding:"required"`
	// TimestampMs is a monotonic millisecond clock; fractional values are allowed
	TimestampMs float64 `json:"timestamp_ms" binding:"min=0,max=9000000000000"`
	// Target is the focused element kind: input, textarea, other or empty
	Target string `json:"target"`
}

// FeedKeysRequest carries a batch of key events in arrival order
type FeedKeysRequest struct {
	Events []KeyEventRequest `json:"events" binding:"required,max=4096,dive"`
}

// ToKeyEvents converts the batch to domain events. Timestamps must lie in
// [0, MaxTimestampMs] and must not go backwards.
func (r FeedKeysRequest) ToKeyEvents() ([]scanner.KeyEvent, error) {
	events := make([]scanner.KeyEvent, 0, len(r.Events))
	prev := math.Inf(-1)
	for i, e := range r.Events {
		if e.TimestampMs < 0 || e.TimestampMs > MaxTimestampMs {
			return nil, fmt.Errorf("events[%d].timestamp_ms out of range [0, %d]", i, int64(MaxTimestampMs))
		}
		if e.TimestampMs < prev {
			return nil, fmt.Errorf("events[%d].timestamp_ms goes backwards", i)
		}
		prev = e.TimestampMs
		events = append(events, scanner.KeyEvent{
			Key:    e.Key,
			At:     time.UnixMilli(0).Add(time.Duration(e.TimestampMs * float64(time.Millisecond))),
			Target: scanner.ParseTarget(e.Target),
		})
	}
	return events, nil
}

// SetEnabledRequest toggles a terminal's scanner
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
