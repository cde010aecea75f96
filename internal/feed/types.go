package feed

import "time"

// Status is the settlement state of a single pick.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusHit     Status = "HIT"
	StatusMiss    Status = "MISS"
	StatusPush    Status = "PUSH"
	StatusVoid    Status = "VOID"
)

// Pick is one prediction entry as delivered by the realtime source.
type Pick struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Status     Status     `json:"status"`
	PointValue float64    `json:"point_value"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	EventID    string     `json:"event_id"`
}

// Resolved reports whether the pick has settled.
func (p Pick) Resolved() bool { return p.Status != StatusPending }

// Owner tags which competitor a combined pick belongs to.
type Owner string

const (
	OwnerUser     Owner = "user"
	OwnerOpponent Owner = "opponent"
)

// CombinedPick is a Pick annotated with side ownership for the merged feed.
type CombinedPick struct {
	Pick
	Owner     Owner  `json:"owner"`
	OwnerName string `json:"owner_name"`
}

// Participants identifies the two sides of a match for merging.
type Participants struct {
	CurrentUserID string
	UserName      string
	OpponentName  string
}

// Summary is a single-pass tally over a merged feed.
type Summary struct {
	TotalResolved int `json:"total_resolved"`
	TotalPending  int `json:"total_pending"`
	UserHits      int `json:"user_hits"`
	OpponentHits  int `json:"opponent_hits"`
}
