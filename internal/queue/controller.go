package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelpicks/duelcore/internal/api"
	"github.com/duelpicks/duelcore/internal/retry"
)

// DefaultPollInterval is how often a queued session asks the server for its
// position while waiting for a match.
const DefaultPollInterval = 3 * time.Second

// JoinPolicy governs quick-match join retries.
var JoinPolicy = retry.Policy{
	MaxRetries:   3,
	BaseDelay:    time.Second,
	MaxDelay:     8 * time.Second,
	JitterFactor: 0.2,
}

// MatchmakingAPI is what the controller needs from the matchmaking service.
type MatchmakingAPI interface {
	QuickMatch(ctx context.Context, req api.QuickMatchRequest) (*api.QuickMatchResponse, error)
	RandomMatch(ctx context.Context, req api.RandomMatchRequest) (*api.RandomMatchResponse, error)
	ChallengeFriend(ctx context.Context, userID string, req api.ChallengeRequest) (*api.ChallengeResponse, error)
	LeaveQueue(ctx context.Context, gameMode string) (*api.LeaveQueueResponse, error)
	GetQueueStatus(ctx context.Context) (*api.QueueStatusResponse, error)
}

// IdempotencyKey derives the join idempotency token from a slip id, so a
// retried or duplicated join against the same unconsumed slip is safe to
// repeat server-side.
func IdempotencyKey(slipID string) string {
	return "qm-join-" + slipID
}

// Controller owns the lifecycle of one matchmaking attempt. It is the single
// writer of the Session; every mutation replaces the whole snapshot under the
// mutex, so readers via Snapshot or Updates always see consistent state.
type Controller struct {
	api          MatchmakingAPI
	exec         *retry.Executor
	clock        clockwork.Clock
	gameMode     string
	pollInterval time.Duration
	joinPolicy   retry.Policy
	instanceID   string // short id for logging

	mu       sync.Mutex
	session  Session
	pollStop chan struct{} // non-nil exactly while polling is active
	updates  chan Session
}

type ControllerOption func(*Controller)

// WithClock injects the clock driving poll tickers and retry sleeps.
func WithClock(c clockwork.Clock) ControllerOption {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// WithExecutor replaces the retry executor used for the quick-match join.
func WithExecutor(e *retry.Executor) ControllerOption {
	return func(ctrl *Controller) { ctrl.exec = e }
}

// WithGameMode sets the queue's game mode, used when leaving.
func WithGameMode(mode string) ControllerOption {
	return func(ctrl *Controller) { ctrl.gameMode = mode }
}

// WithPollInterval overrides the default 3s status poll cadence.
func WithPollInterval(d time.Duration) ControllerOption {
	return func(ctrl *Controller) { ctrl.pollInterval = d }
}

// WithJoinPolicy overrides the quick-match join retry policy.
func WithJoinPolicy(p retry.Policy) ControllerOption {
	return func(ctrl *Controller) { ctrl.joinPolicy = p }
}

func NewController(mm MatchmakingAPI, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:          mm,
		clock:        clockwork.NewRealClock(),
		gameMode:     "quick",
		pollInterval: DefaultPollInterval,
		joinPolicy:   JoinPolicy,
		instanceID:   uuid.New().String()[:8],
		session:      Session{Phase: PhaseIdle},
		updates:      make(chan Session, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = retry.NewExecutor(retry.WithClock(c.clock))
	}
	return c
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Updates delivers session snapshots after each state change. The channel
// coalesces: if the consumer lags, intermediate snapshots are dropped and the
// latest wins.
func (c *Controller) Updates() <-chan Session {
	return c.updates
}

// Polling reports whether the status poll loop is active.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollStop != nil
}

// commitLocked replaces the session snapshot and publishes it. Must be called
// with c.mu held.
func (c *Controller) commitLocked(next Session) {
	next.LastUpdatedAt = c.clock.Now()
	c.session = next

	// Latest-wins publish: drop the stale pending snapshot if the consumer
	// has not drained it.
	select {
	case c.updates <- next:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- next:
	default:
	}
}

// JoinQuickMatch enters the stake-matched quick queue. It returns false with
// no state change when a join is already in flight or the session is already
// queued or matched. Network failures exhaust the join retry policy before
// surfacing as LastError.
func (c *Controller) JoinQuickMatch(ctx context.Context, slipID string, stakeAmount int64, region string) bool {
	c.mu.Lock()
	if c.session.Joining || c.session.Phase == PhaseQueued || c.session.Phase == PhaseMatched {
		c.mu.Unlock()
		log.Debug().
			Str("instance", c.instanceID).
			Str("phase", string(c.session.Phase)).
			Msg("quick match join rejected: already joining or active")
		return false
	}
	next := c.session
	next.Joining = true
	next.Phase = PhaseJoining
	next.LastError = ""
	c.commitLocked(next)
	c.mu.Unlock()

	req := api.QuickMatchRequest{
		SlipID:         slipID,
		StakeAmount:    stakeAmount,
		Region:         region,
		IdempotencyKey: IdempotencyKey(slipID),
	}
	resp, err := retry.ExecuteOrErr(ctx, c.exec, c.joinPolicy, func(ctx context.Context) (*api.QuickMatchResponse, error) {
		return c.api.QuickMatch(ctx, req)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	next = c.session
	next.Joining = false
	// A push-delivered match may have landed during the network suspension;
	// terminal phases win, so the response (or its error) is superseded.
	if next.Phase.Terminal() {
		c.commitLocked(next)
		return true
	}
	if err != nil {
		next.Phase = PhaseIdle
		next.LastError = err.Error()
		c.commitLocked(next)
		log.Warn().
			Err(err).
			Str("instance", c.instanceID).
			Str("slip_id", slipID).
			Msg("quick match join failed")
		return false
	}

	switch resp.Status {
	case api.JoinMatched:
		c.commitLocked(next)
		c.setMatchFoundLocked(resp.Match.ID, resp.Match)
		return true
	case api.JoinQueued:
		next.Phase = PhaseQueued
		c.commitLocked(next)
		c.startPollingLocked(c.pollInterval)
		log.Info().
			Str("instance", c.instanceID).
			Str("entry_id", resp.QueueEntry.ID).
			Msg("enqueued for quick match")
		return true
	}
	// unreachable: responses are validated at the API boundary
	return false
}

// JoinRandomMatch opens a lobby against any opponent. Single attempt, no
// retry loop; success lands directly in Matched.
func (c *Controller) JoinRandomMatch(ctx context.Context, slipID string, stakeAmount int64, lobbyExpiresInSec int) bool {
	return c.joinDirect(ctx, func(ctx context.Context) (*api.Match, error) {
		resp, err := c.api.RandomMatch(ctx, api.RandomMatchRequest{
			SlipID:            slipID,
			StakeAmount:       stakeAmount,
			LobbyExpiresInSec: lobbyExpiresInSec,
		})
		if err != nil {
			return nil, err
		}
		return resp.Match, nil
	})
}

// ChallengeFriend sends a direct head-to-head challenge. Single attempt;
// success lands directly in Matched.
func (c *Controller) ChallengeFriend(ctx context.Context, userID, slipID string, stakeAmount int64, message string) bool {
	return c.joinDirect(ctx, func(ctx context.Context) (*api.Match, error) {
		resp, err := c.api.ChallengeFriend(ctx, userID, api.ChallengeRequest{
			SlipID:      slipID,
			StakeAmount: stakeAmount,
			Message:     message,
		})
		if err != nil {
			return nil, err
		}
		return resp.Match, nil
	})
}

func (c *Controller) joinDirect(ctx context.Context, op func(context.Context) (*api.Match, error)) bool {
	c.mu.Lock()
	if c.session.Joining || c.session.Phase == PhaseQueued || c.session.Phase == PhaseMatched {
		c.mu.Unlock()
		return false
	}
	next := c.session
	next.Joining = true
	next.Phase = PhaseJoining
	next.LastError = ""
	c.commitLocked(next)
	c.mu.Unlock()

	match, err := op(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	next = c.session
	next.Joining = false
	// Terminal phases win over the in-flight response, as in JoinQuickMatch.
	if next.Phase.Terminal() {
		c.commitLocked(next)
		return true
	}
	if err != nil {
		next.Phase = PhaseIdle
		next.LastError = err.Error()
		c.commitLocked(next)
		return false
	}
	c.commitLocked(next)
	c.setMatchFoundLocked(match.ID, match)
	return true
}

// LeaveQueue removes the session from the queue. Polling stops before the
// network call is issued, so a late tick cannot revive state mid-leave. The
// session returns to Idle even when the server call fails; a later status
// fetch reconciles any discrepancy.
func (c *Controller) LeaveQueue(ctx context.Context) bool {
	c.mu.Lock()
	if c.session.Phase != PhaseQueued || c.session.Leaving {
		c.mu.Unlock()
		return false
	}
	c.stopPollingLocked()
	next := c.session
	next.Leaving = true
	c.commitLocked(next)
	c.mu.Unlock()

	resp, err := c.api.LeaveQueue(ctx, c.gameMode)

	c.mu.Lock()
	defer c.mu.Unlock()
	next = c.session
	next.Leaving = false
	// A push-delivered match may have landed mid-leave; terminal phases win.
	if !next.Phase.Terminal() {
		next.Phase = PhaseIdle
		next.QueuePosition = nil
		next.EstimatedWaitMs = nil
	}
	if err != nil {
		next.LastError = err.Error()
		c.commitLocked(next)
		log.Warn().
			Err(err).
			Str("instance", c.instanceID).
			Msg("leave queue failed; local state reset anyway")
		return false
	}
	if resp.RefundedAmount > 0 {
		refunded := resp.RefundedAmount
		next.RefundedAmount = &refunded
	}
	c.commitLocked(next)
	return true
}

// StartPolling begins the periodic status fetch. Duplicate starts are no-ops;
// a non-positive interval takes the configured default.
func (c *Controller) StartPolling(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startPollingLocked(interval)
}

func (c *Controller) startPollingLocked(interval time.Duration) {
	if c.pollStop != nil {
		return
	}
	if interval <= 0 {
		interval = c.pollInterval
	}
	stop := make(chan struct{})
	c.pollStop = stop
	go c.pollLoop(stop, interval)
	log.Debug().
		Str("instance", c.instanceID).
		Dur("interval", interval).
		Msg("queue status polling started")
}

// StopPolling cancels the poll loop if one is running. Idempotent.
func (c *Controller) StopPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPollingLocked()
}

func (c *Controller) stopPollingLocked() {
	if c.pollStop == nil {
		return
	}
	close(c.pollStop)
	c.pollStop = nil
	log.Debug().Str("instance", c.instanceID).Msg("queue status polling stopped")
}

func (c *Controller) pollLoop(stop <-chan struct{}, interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.fetchQueueStatus(context.Background())
		}
	}
}

// fetchQueueStatus is one poll tick. Local terminal conditions are checked
// before any network call so a stale timer never races a transition that
// already happened via the push path. Transient failures are absorbed: they
// never set LastError and never stop polling.
func (c *Controller) fetchQueueStatus(ctx context.Context) {
	c.mu.Lock()
	if c.pollStop == nil {
		// Stale tick from a loop that lost the race with a stop.
		c.mu.Unlock()
		return
	}
	if c.session.MatchID != "" || c.session.Phase != PhaseQueued {
		c.stopPollingLocked()
		c.mu.Unlock()
		return
	}
	if c.session.FetchingStatus {
		c.mu.Unlock()
		return
	}
	next := c.session
	next.FetchingStatus = true
	c.commitLocked(next)
	c.mu.Unlock()

	resp, err := c.api.GetQueueStatus(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	next = c.session
	next.FetchingStatus = false
	if err != nil {
		// Expected under mobile connectivity; resolve on the next tick.
		c.commitLocked(next)
		log.Debug().
			Err(err).
			Str("instance", c.instanceID).
			Msg("queue status fetch failed; retrying next tick")
		return
	}
	if next.Phase != PhaseQueued {
		// Superseded while the fetch was in flight.
		c.commitLocked(next)
		return
	}

	if resp.Entry != nil {
		switch resp.Entry.Status {
		case api.QueueEntryMatched:
			c.commitLocked(next)
			c.setMatchFoundLocked(resp.Entry.MatchID, nil)
			return
		case api.QueueEntryExpired:
			reason := resp.Entry.Reason
			if reason == "" {
				reason = "queue wait expired before an opponent was found"
			}
			c.commitLocked(next)
			c.setQueueExpiredLocked(reason, resp.Entry.RefundedAmount)
			return
		case api.QueueEntryCancelled:
			c.stopPollingLocked()
			next.Phase = PhaseIdle
			next.LastError = "queue entry was cancelled"
			next.QueuePosition = nil
			next.EstimatedWaitMs = nil
			c.commitLocked(next)
			return
		}
	}

	next.QueuePosition = resp.Position
	next.EstimatedWaitMs = resp.EstimatedWaitMs
	c.commitLocked(next)
}

// SetMatchFound applies a match-found transition delivered out of band (push
// channel) or via a poll response. Idempotent: once the session is terminal,
// re-delivery of the same match only refreshes LastUpdatedAt, and anything
// else is a no-op.
func (c *Controller) SetMatchFound(matchID string, match *api.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setMatchFoundLocked(matchID, match)
}

func (c *Controller) setMatchFoundLocked(matchID string, match *api.Match) {
	if c.session.Phase.Terminal() {
		if c.session.MatchID == matchID && matchID != "" {
			c.commitLocked(c.session)
		} else {
			log.Debug().
				Str("instance", c.instanceID).
				Str("match_id", matchID).
				Str("phase", string(c.session.Phase)).
				Msg("ignoring match found for terminal session")
		}
		return
	}
	c.stopPollingLocked()
	next := c.session
	next.Phase = PhaseMatched
	next.MatchID = matchID
	next.Match = match
	next.QueuePosition = nil
	next.EstimatedWaitMs = nil
	c.commitLocked(next)
	log.Info().
		Str("instance", c.instanceID).
		Str("match_id", matchID).
		Msg("match found")
}

// SetQueueExpired applies a queue-expired transition from either delivery
// path. Idempotent; a no-op once the session is terminal.
func (c *Controller) SetQueueExpired(reason string, refundedAmount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setQueueExpiredLocked(reason, refundedAmount)
}

func (c *Controller) setQueueExpiredLocked(reason string, refundedAmount int64) {
	if c.session.Phase.Terminal() {
		log.Debug().
			Str("instance", c.instanceID).
			Str("phase", string(c.session.Phase)).
			Msg("ignoring queue expiry for terminal session")
		return
	}
	c.stopPollingLocked()
	next := c.session
	next.Phase = PhaseExpired
	next.ExpiredReason = reason
	next.RefundedAmount = &refundedAmount
	next.QueuePosition = nil
	next.EstimatedWaitMs = nil
	c.commitLocked(next)
	log.Info().
		Str("instance", c.instanceID).
		Str("reason", reason).
		Int64("refunded", refundedAmount).
		Msg("queue expired")
}

// ResetQueue stops polling and restores the initial session. Used on logout
// or when leaving the matchmaking flow entirely.
func (c *Controller) ResetQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPollingLocked()
	c.commitLocked(Session{Phase: PhaseIdle})
}

// ClearError dismisses a non-fatal error banner without touching the rest of
// the session.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.LastError == "" {
		return
	}
	next := c.session
	next.LastError = ""
	c.commitLocked(next)
}

// ClearExpiredState dismisses the expiration outcome and returns the session
// to Idle so a new attempt can begin.
func (c *Controller) ClearExpiredState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Phase != PhaseExpired && c.session.ExpiredReason == "" {
		return
	}
	next := c.session
	next.ExpiredReason = ""
	next.RefundedAmount = nil
	if next.Phase == PhaseExpired {
		next.Phase = PhaseIdle
	}
	c.commitLocked(next)
}
