// Package audit records gate verdicts: one row per validated event, with
// an in-memory ring of recent rejections for fast inspection.
package audit

import (
	"fmt"
	"time"

	"github.com/dshills/ioguard/pkg/event"
	"github.com/dshills/ioguard/pkg/ring"
)

// Outcome categorizes the result of validating a single event.
type Outcome string

const (
	// OutcomeAdmitted indicates the event passed every check
	OutcomeAdmitted Outcome = "admitted"
	// OutcomeRejected indicates a validator turned the event away
	OutcomeRejected Outcome = "rejected"
	// OutcomePolicyDenied indicates a configured policy rule denied the event
	OutcomePolicyDenied Outcome = "policy_denied"
	// OutcomeError indicates validation itself failed (caller misuse, storage fault)
	OutcomeError Outcome = "error"
)

// Verdict is a single recorded validation decision.
type Verdict struct {
	// EventID is the validated event's identifier
	EventID string `json:"event_id"`

	// EventType is the validated event's type
	EventType event.Type `json:"event_type"`

	// Outcome is the decision
	Outcome Outcome `json:"outcome"`

	// Validator names the component that produced the decision
	// (for example "filepath", "network", "policy")
	Validator string `json:"validator"`

	// Reason carries the rejection message; empty for admitted events
	Reason string `json:"reason,omitempty"`

	// Size is the event payload size in bytes
	Size int `json:"size"`

	// Timestamp records when the verdict was produced
	Timestamp time.Time `json:"timestamp"`
}

// DefaultRecentRejections is the capacity of the in-memory rejection ring.
const DefaultRecentRejections = 100

// Trail keeps the most recent rejections in memory. Safe for concurrent use.
type Trail struct {
	rejections *ring.CircularBuffer[Verdict]
}

// NewTrail creates a trail holding up to capacity recent rejections.
func NewTrail(capacity int) (*Trail, error) {
	buf, err := ring.New[Verdict](capacity)
	if err != nil {
		return nil, fmt.Errorf("rejection ring: %w", err)
	}
	return &Trail{rejections: buf}, nil
}

// Record adds rejection verdicts to the ring. Admitted verdicts are ignored.
func (t *Trail) Record(v Verdict) {
	if v.Outcome == OutcomeAdmitted {
		return
	}
	t.rejections.Add(v)
}

// RecentRejections returns up to n recent rejections, newest last.
func (t *Trail) RecentRejections(n int) []Verdict {
	return t.rejections.GetRecentItems(n)
}
