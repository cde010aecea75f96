package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelpicks/duelcore/internal/feed"
	"github.com/duelpicks/duelcore/internal/momentum"
)

var liveWho = feed.Participants{
	CurrentUserID: "u1",
	UserName:      "Me",
	OpponentName:  "Jules",
}

func livePick(id, owner string, status feed.Status, points float64, settled time.Time) feed.Pick {
	p := feed.Pick{
		ID:         id,
		OwnerID:    owner,
		Status:     status,
		PointValue: points,
		CreatedAt:  settled.Add(-time.Hour),
	}
	if status != feed.StatusPending {
		t := settled
		p.SettledAt = &t
	}
	return p
}

func drain(t *testing.T, c *Client) Update {
	t.Helper()
	select {
	case u := <-c.Updates():
		return u
	default:
		t.Fatal("expected a pending update")
		return Update{}
	}
}

func TestApply_PicksFrameReconciles(t *testing.T) {
	c := NewClient("ws://gateway/match/m1", liveWho)
	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	c.apply(Frame{
		Type:          frameTypePicks,
		UserPicks:     []feed.Pick{livePick("p1", "u1", feed.StatusHit, 10, base)},
		OpponentPicks: []feed.Pick{livePick("p2", "u2", feed.StatusPending, 5, base)},
	})

	u := drain(t, c)
	require.Len(t, u.Feed, 2)
	assert.Equal(t, "p1", u.Feed[0].ID, "resolved picks order before pending")
	assert.Equal(t, feed.OwnerUser, u.Feed[0].Owner)
	assert.Equal(t, "Jules", u.Feed[1].OwnerName)
	assert.Equal(t, 1, u.Summary.TotalResolved)
	assert.Equal(t, 1, u.Summary.TotalPending)
	assert.Empty(t, u.Changed, "first sight of a pick is not a transition")
}

func TestApply_StatusTransitionFlagged(t *testing.T) {
	c := NewClient("ws://gateway/match/m1", liveWho)
	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	c.apply(Frame{
		Type:      frameTypePicks,
		UserPicks: []feed.Pick{livePick("p1", "u1", feed.StatusPending, 10, base)},
	})
	drain(t, c)

	c.apply(Frame{
		Type:      frameTypePicks,
		UserPicks: []feed.Pick{livePick("p1", "u1", feed.StatusHit, 10, base)},
	})

	u := drain(t, c)
	assert.Contains(t, u.Changed, "p1")
	assert.Len(t, u.Changed, 1)
}

func TestApply_ScoresFrameKeepsRetainedPicks(t *testing.T) {
	c := NewClient("ws://gateway/match/m1", liveWho)
	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	c.apply(Frame{
		Type:      frameTypePicks,
		UserPicks: []feed.Pick{livePick("p1", "u1", feed.StatusHit, 10, base)},
	})
	drain(t, c)

	c.apply(Frame{
		Type:       frameTypeScores,
		Scores:     map[string]float64{"ev-9": 21},
		UserPoints: 30,
	})

	u := drain(t, c)
	require.Len(t, u.Feed, 1, "scores frame must not drop the retained feed")
	assert.Equal(t, "p1", u.Feed[0].ID)
	assert.Equal(t, 21.0, u.Scores["ev-9"])
}

func TestApply_MomentumRecomputedPerFrame(t *testing.T) {
	c := NewClient("ws://gateway/match/m1", liveWho, WithScoring(momentum.Options{WindowSize: 6}))
	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	c.apply(Frame{
		Type: frameTypePicks,
		UserPicks: []feed.Pick{
			livePick("p1", "u1", feed.StatusHit, 20, base),
		},
		OpponentPicks: []feed.Pick{
			livePick("p2", "u2", feed.StatusHit, 10, base.Add(time.Minute)),
		},
	})

	u := drain(t, c)
	assert.Equal(t, momentum.MethodRecent, u.Momentum.Method)
	assert.InDelta(t, 1.0/3.0, u.Momentum.Score, 1e-9)
	assert.Equal(t, momentum.LabelYou, u.Momentum.Label)
}

func TestApply_UnknownFrameTypeIgnored(t *testing.T) {
	c := NewClient("ws://gateway/match/m1", liveWho)

	c.apply(Frame{Type: "presence"})

	select {
	case <-c.Updates():
		t.Fatal("unknown frame must not publish an update")
	default:
	}
}

func TestApply_CoalescesToLatest(t *testing.T) {
	c := NewClient("ws://gateway/match/m1", liveWho)
	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	// Three frames with no reader in between; only the last view survives.
	for _, status := range []feed.Status{feed.StatusPending, feed.StatusHit, feed.StatusMiss} {
		c.apply(Frame{
			Type:      frameTypePicks,
			UserPicks: []feed.Pick{livePick("p1", "u1", status, 10, base)},
		})
	}

	u := drain(t, c)
	require.Len(t, u.Feed, 1)
	assert.Equal(t, feed.StatusMiss, u.Feed[0].Status)
	select {
	case <-c.Updates():
		t.Fatal("exactly one coalesced update should be pending")
	default:
	}
}
