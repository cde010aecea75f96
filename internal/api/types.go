package api

import (
	"fmt"
	"time"
)

// QueueEntryStatus is the server-reported state of a matchmaking queue entry.
type QueueEntryStatus string

const (
	QueueEntryWaiting   QueueEntryStatus = "WAITING"
	QueueEntryMatched   QueueEntryStatus = "MATCHED"
	QueueEntryExpired   QueueEntryStatus = "EXPIRED"
	QueueEntryCancelled QueueEntryStatus = "CANCELLED"
)

// JoinStatus discriminates the two quick-match join outcomes.
type JoinStatus string

const (
	JoinMatched JoinStatus = "MATCHED"
	JoinQueued  JoinStatus = "QUEUED"
)

// Match is the server's description of a created head-to-head match.
type Match struct {
	ID           string    `json:"id"`
	OpponentID   string    `json:"opponent_id"`
	OpponentName string    `json:"opponent_name"`
	StakeAmount  int64     `json:"stake_amount"`
	GameMode     string    `json:"game_mode"`
	CreatedAt    time.Time `json:"created_at"`
}

// QueueEntry describes one matchmaking queue membership.
type QueueEntry struct {
	ID             string           `json:"id"`
	Status         QueueEntryStatus `json:"status"`
	MatchID        string           `json:"match_id,omitempty"`
	StakeAmount    int64            `json:"stake_amount"`
	Reason         string           `json:"reason,omitempty"`
	RefundedAmount int64            `json:"refunded_amount,omitempty"`
}

// QuickMatchRequest enters the stake-matched quick queue. IdempotencyKey is
// derived from the slip id so a retried join is safe to repeat server-side.
type QuickMatchRequest struct {
	SlipID         string `json:"slip_id"`
	StakeAmount    int64  `json:"stake_amount"`
	Region         string `json:"region,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// QuickMatchResponse is tagged by Status: MATCHED carries Match, QUEUED
// carries QueueEntry.
type QuickMatchResponse struct {
	Status     JoinStatus  `json:"status"`
	Match      *Match      `json:"match,omitempty"`
	QueueEntry *QueueEntry `json:"queue_entry,omitempty"`
}

// Validate enforces the discriminated shape at the boundary so transition
// logic downstream can switch exhaustively on Status.
func (r *QuickMatchResponse) Validate() error {
	switch r.Status {
	case JoinMatched:
		if r.Match == nil || r.Match.ID == "" {
			return fmt.Errorf("quick match response: status MATCHED without match")
		}
	case JoinQueued:
		if r.QueueEntry == nil {
			return fmt.Errorf("quick match response: status QUEUED without queue entry")
		}
	default:
		return fmt.Errorf("quick match response: unknown status %q", r.Status)
	}
	return nil
}

// RandomMatchRequest opens a lobby against any opponent at the given stake.
type RandomMatchRequest struct {
	SlipID            string `json:"slip_id"`
	StakeAmount       int64  `json:"stake_amount"`
	LobbyExpiresInSec int    `json:"lobby_expires_in_sec,omitempty"`
}

type RandomMatchResponse struct {
	Match *Match `json:"match"`
}

func (r *RandomMatchResponse) Validate() error {
	if r.Match == nil || r.Match.ID == "" {
		return fmt.Errorf("random match response: missing match")
	}
	return nil
}

// ChallengeRequest sends a direct head-to-head challenge to a friend.
type ChallengeRequest struct {
	SlipID      string `json:"slip_id"`
	StakeAmount int64  `json:"stake_amount"`
	Message     string `json:"message,omitempty"`
}

type ChallengeResponse struct {
	Match *Match `json:"match"`
}

func (r *ChallengeResponse) Validate() error {
	if r.Match == nil || r.Match.ID == "" {
		return fmt.Errorf("challenge response: missing match")
	}
	return nil
}

type LeaveQueueRequest struct {
	GameMode string `json:"game_mode"`
}

type LeaveQueueResponse struct {
	Success        bool  `json:"success"`
	RefundedAmount int64 `json:"refunded_amount,omitempty"`
}

// QueueStatusResponse is a snapshot of the caller's queue membership.
// Position and EstimatedWaitMs are only present while waiting.
type QueueStatusResponse struct {
	InQueue         bool        `json:"in_queue"`
	Entry           *QueueEntry `json:"entry,omitempty"`
	Position        *int        `json:"position,omitempty"`
	EstimatedWaitMs *int64      `json:"estimated_wait_ms,omitempty"`
}

func (r *QueueStatusResponse) Validate() error {
	if r.InQueue && r.Entry == nil {
		return fmt.Errorf("queue status response: in_queue without entry")
	}
	return nil
}
