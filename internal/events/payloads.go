package events

import (
	"encoding/json"

	"github.com/duelpicks/duelcore/internal/api"
)

// Type discriminates push event envelopes.
type Type string

const (
	TypeMatchFound   Type = "MatchFound"
	TypeQueueExpired Type = "QueueExpired"
)

// Envelope is the wire shape of one push event.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MatchFoundPayload announces that matchmaking produced an opponent.
type MatchFoundPayload struct {
	MatchID string     `json:"match_id"`
	Match   *api.Match `json:"match,omitempty"`
}

// QueueExpiredPayload announces that the queue wait timed out and the stake
// was refunded.
type QueueExpiredPayload struct {
	Reason         string `json:"reason"`
	RefundedAmount int64  `json:"refunded_amount"`
}
