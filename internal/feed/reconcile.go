package feed

import (
	"sort"
	"time"
)

// Merge combines both competitors' picks with the previously reconciled feed
// into one deduplicated, deterministically ordered view. The map is seeded
// from existing so caller-side annotations survive, then every fresh pick is
// upserted (user side first, then opponent); later upserts win, so the feed
// never holds two entries with the same id. Resolved picks sort before
// pending ones; resolved by settlement time descending (nil earliest),
// pending by creation time descending. Ties keep their prior relative order.
func Merge(existing []CombinedPick, userPicks, opponentPicks []Pick, who Participants) []CombinedPick {
	merged := make([]CombinedPick, 0, len(existing)+len(userPicks)+len(opponentPicks))
	index := make(map[string]int, cap(merged))

	upsert := func(cp CombinedPick) {
		if i, ok := index[cp.ID]; ok {
			merged[i] = cp
			return
		}
		index[cp.ID] = len(merged)
		merged = append(merged, cp)
	}

	for _, cp := range existing {
		upsert(cp)
	}
	for _, p := range userPicks {
		upsert(CombinedPick{Pick: p, Owner: OwnerUser, OwnerName: who.UserName})
	}
	for _, p := range opponentPicks {
		upsert(CombinedPick{Pick: p, Owner: OwnerOpponent, OwnerName: who.OpponentName})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return pickLess(merged[i], merged[j])
	})
	return merged
}

func pickLess(a, b CombinedPick) bool {
	if a.Resolved() != b.Resolved() {
		return a.Resolved()
	}
	if a.Resolved() {
		return settleTime(a.Pick).After(settleTime(b.Pick))
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// settleTime treats a missing settlement timestamp as the earliest possible,
// pushing such picks to the bottom of the resolved section.
func settleTime(p Pick) time.Time {
	if p.SettledAt == nil {
		return time.Time{}
	}
	return *p.SettledAt
}

// DetectStatusChanges returns the ids whose status differs between the
// previous and next feeds. New entries are not flagged; the result drives a
// transient resolve animation, which only makes sense for picks the user has
// already seen.
func DetectStatusChanges(prev, next []CombinedPick) map[string]struct{} {
	changed := make(map[string]struct{})
	if len(prev) == 0 {
		return changed
	}
	prevStatus := make(map[string]Status, len(prev))
	for _, cp := range prev {
		prevStatus[cp.ID] = cp.Status
	}
	for _, cp := range next {
		if s, ok := prevStatus[cp.ID]; ok && s != cp.Status {
			changed[cp.ID] = struct{}{}
		}
	}
	return changed
}

// Summarize tallies a merged feed in a single pass.
func Summarize(merged []CombinedPick) Summary {
	var s Summary
	for _, cp := range merged {
		if cp.Resolved() {
			s.TotalResolved++
		} else {
			s.TotalPending++
		}
		if cp.Status == StatusHit {
			switch cp.Owner {
			case OwnerUser:
				s.UserHits++
			case OwnerOpponent:
				s.OpponentHits++
			}
		}
	}
	return s
}
