package queue

import (
	"time"

	"github.com/duelpicks/duelcore/internal/api"
)

// Phase is the lifecycle position of one matchmaking attempt. An error is a
// modifier on Idle/Queued (LastError set), not a phase of its own.
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseJoining Phase = "JOINING"
	PhaseQueued  Phase = "QUEUED"
	PhaseMatched Phase = "MATCHED"
	PhaseExpired Phase = "EXPIRED"
)

// Terminal reports whether the phase ends the attempt. Once terminal, only an
// explicit reset moves the session again.
func (p Phase) Terminal() bool {
	return p == PhaseMatched || p == PhaseExpired
}

// Session is a consistent snapshot of one matchmaking attempt. The controller
// is the only writer; consumers read snapshots and never observe a torn
// combination of fields.
type Session struct {
	Phase           Phase      `json:"phase"`
	QueuePosition   *int       `json:"queue_position,omitempty"`
	EstimatedWaitMs *int64     `json:"estimated_wait_ms,omitempty"`
	MatchID         string     `json:"match_id,omitempty"`
	Match           *api.Match `json:"match,omitempty"`
	ExpiredReason   string     `json:"expired_reason,omitempty"`
	RefundedAmount  *int64     `json:"refunded_amount,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	LastUpdatedAt   time.Time  `json:"last_updated_at"`

	// In-flight guards. At most one of Joining/Leaving is true at a time;
	// FetchingStatus gates overlapping poll requests.
	Joining        bool `json:"joining"`
	Leaving        bool `json:"leaving"`
	FetchingStatus bool `json:"fetching_status"`
}
