package keypool

import (
	"time"

	"github.com/google/uuid"

	"github.com/apexsports/feedgate/internal/observability"
)

// Reason explains why a rotation happened.
type Reason string

const (
	ReasonRateLimit Reason = "rate_limit"
	ReasonInvalid   Reason = "invalid"
	ReasonManual    Reason = "manual"
	ReasonScheduled Reason = "scheduled"
)

// defaultHistorySize bounds the rotation event log.
const defaultHistorySize = 100

// RotationEvent is an immutable record of one rotation attempt. Key values
// are stored masked.
type RotationEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	FromKey   string    `json:"from_key"`
	ToKey     string    `json:"to_key,omitempty"`
	Reason    Reason    `json:"reason"`
	Success   bool      `json:"success"`
}

// rotationHistory is a fixed-capacity ring of rotation events. The Manager
// synchronizes access.
type rotationHistory struct {
	events []RotationEvent
	next   int
	full   bool
}

func newRotationHistory(size int) *rotationHistory {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &rotationHistory{events: make([]RotationEvent, size)}
}

func (h *rotationHistory) append(ev RotationEvent) {
	h.events[h.next] = ev
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

// tail returns up to limit events in chronological order, oldest first.
// A non-positive limit returns everything retained.
func (h *rotationHistory) tail(limit int) []RotationEvent {
	var ordered []RotationEvent
	if h.full {
		ordered = append(ordered, h.events[h.next:]...)
		ordered = append(ordered, h.events[:h.next]...)
	} else {
		ordered = append(ordered, h.events[:h.next]...)
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

func (m *Manager) recordRotationLocked(provider, from, to string, reason Reason, success bool) {
	ev := RotationEvent{
		ID:        uuid.New().String(),
		Timestamp: m.now(),
		Provider:  provider,
		FromKey:   observability.MaskKey(from),
		Reason:    reason,
		Success:   success,
	}
	if to != "" {
		ev.ToKey = observability.MaskKey(to)
	}
	m.history.append(ev)
}
