// Package momentum derives a bounded indicator of which competitor has
// recently been outperforming the other from settled picks.
package momentum

import (
	"sort"

	"github.com/duelpicks/duelcore/internal/feed"
)

// Method records which algorithm produced a Result.
type Method string

const (
	MethodRecent   Method = "recent"
	MethodFallback Method = "fallback"
)

// Label is the UI-facing reading of the score.
type Label string

const (
	LabelYou      Label = "you"
	LabelOpponent Label = "opponent"
	LabelEven     Label = "even"
)

// Result is recomputed on demand and never persisted.
type Result struct {
	Score      float64 `json:"score"` // always in [-1, 1]
	Label      Label   `json:"label"`
	SampleSize int     `json:"sample_size"`
	Method     Method  `json:"method"`
}

// Options tune the scoring window and label thresholds per call. Zero values
// take the defaults below.
type Options struct {
	WindowSize        int     // settled picks considered; default 6
	UserThreshold     float64 // score above this reads "you"; default 0.15
	OpponentThreshold float64 // score below this reads "opponent"; default -0.15
}

const (
	defaultWindowSize        = 6
	defaultUserThreshold     = 0.15
	defaultOpponentThreshold = -0.15
)

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = defaultWindowSize
	}
	if o.UserThreshold == 0 {
		o.UserThreshold = defaultUserThreshold
	}
	if o.OpponentThreshold == 0 {
		o.OpponentThreshold = defaultOpponentThreshold
	}
	return o
}

// Score summarizes recent competitive advantage as a scalar in [-1, 1]. With
// at least two settled picks it weighs hits in the most recent window by
// point value; with fewer it falls back to the live point differential so a
// just-started match still produces a sensible reading.
func Score(userPicks, opponentPicks []feed.Pick, currentUserID string, userPoints, opponentPoints float64, opts Options) Result {
	opts = opts.withDefaults()

	settled := make([]feed.Pick, 0, len(userPicks)+len(opponentPicks))
	for _, p := range userPicks {
		if p.Resolved() && p.SettledAt != nil {
			settled = append(settled, p)
		}
	}
	for _, p := range opponentPicks {
		if p.Resolved() && p.SettledAt != nil {
			settled = append(settled, p)
		}
	}

	if len(settled) < 2 {
		total := userPoints + opponentPoints
		if total < 1 {
			total = 1
		}
		score := clamp((userPoints - opponentPoints) / total)
		return Result{
			Score:      score,
			Label:      labelFor(score, opts),
			SampleSize: len(settled),
			Method:     MethodFallback,
		}
	}

	sort.SliceStable(settled, func(i, j int) bool {
		return settled[i].SettledAt.Before(*settled[j].SettledAt)
	})
	if len(settled) > opts.WindowSize {
		settled = settled[len(settled)-opts.WindowSize:]
	}

	var delta, magnitude float64
	for _, p := range settled {
		magnitude += p.PointValue
		if p.Status != feed.StatusHit {
			continue
		}
		if p.OwnerID == currentUserID {
			delta += p.PointValue
		} else {
			delta -= p.PointValue
		}
	}
	if magnitude < 1 {
		magnitude = 1
	}

	score := clamp(delta / magnitude)
	return Result{
		Score:      score,
		Label:      labelFor(score, opts),
		SampleSize: len(settled),
		Method:     MethodRecent,
	}
}

func labelFor(score float64, opts Options) Label {
	switch {
	case score > opts.UserThreshold:
		return LabelYou
	case score < opts.OpponentThreshold:
		return LabelOpponent
	default:
		return LabelEven
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
