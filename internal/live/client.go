// Package live consumes the realtime gateway's pick and score snapshots over
// a websocket, reconciles them into the merged feed, and derives the momentum
// reading after every frame.
package live

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/duelpicks/duelcore/internal/api"
	"github.com/duelpicks/duelcore/internal/feed"
	"github.com/duelpicks/duelcore/internal/momentum"
	"github.com/duelpicks/duelcore/internal/retry"
)

// Frame is one gateway message. Picks frames replace the per-side pick
// snapshots; score frames replace the live score map and point totals.
type Frame struct {
	Type           string             `json:"type"` // "picks" or "scores"
	UserPicks      []feed.Pick        `json:"user_picks,omitempty"`
	OpponentPicks  []feed.Pick        `json:"opponent_picks,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"` // keyed by event id
	UserPoints     float64            `json:"user_points,omitempty"`
	OpponentPoints float64            `json:"opponent_points,omitempty"`
}

const (
	frameTypePicks  = "picks"
	frameTypeScores = "scores"
)

// Update is the reconciled view after one frame.
type Update struct {
	Feed     []feed.CombinedPick
	Changed  map[string]struct{} // ids whose status just transitioned
	Summary  feed.Summary
	Momentum momentum.Result
	Scores   map[string]float64
}

// DialPolicy governs reconnect backoff for the websocket.
var DialPolicy = retry.Policy{
	MaxRetries:   5,
	BaseDelay:    500 * time.Millisecond,
	MaxDelay:     15 * time.Second,
	JitterFactor: 0.3,
}

// Client holds the previous reconciled feed between frames; that retained
// feed is the only cross-call state the reconciler depends on.
type Client struct {
	url     string
	who     feed.Participants
	exec    *retry.Executor
	dialer  *websocket.Dialer
	scoring momentum.Options

	// Owned by the run loop goroutine exclusively.
	prev           []feed.CombinedPick
	userPicks      []feed.Pick
	opponentPicks  []feed.Pick
	scores         map[string]float64
	userPoints     float64
	opponentPoints float64

	updates chan Update
}

type Option func(*Client)

// WithExecutor replaces the retry executor used for redials.
func WithExecutor(e *retry.Executor) Option {
	return func(c *Client) { c.exec = e }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithScoring overrides momentum scoring options.
func WithScoring(opts momentum.Options) Option {
	return func(c *Client) { c.scoring = opts }
}

func NewClient(url string, who feed.Participants, opts ...Option) *Client {
	c := &Client{
		url:     url,
		who:     who,
		dialer:  websocket.DefaultDialer,
		updates: make(chan Update, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = retry.NewExecutor()
	}
	return c
}

// Updates delivers the reconciled view after each frame. Coalescing: if the
// consumer lags, intermediate updates are dropped and the latest wins.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Run connects and consumes frames until ctx is canceled or the reconnect
// budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := retry.ExecuteOrErr(ctx, c.exec, DialPolicy, c.dial)
		if err != nil {
			return err
		}
		err = c.consume(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("url", c.url).Msg("live feed connection lost, redialing")
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			// Surface the HTTP status so the executor classifies it.
			return nil, &api.Error{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, err
	}
	return conn, nil
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return gctx.Err()
	})
	g.Go(func() error {
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return err
			}
			c.apply(frame)
		}
	})
	return g.Wait()
}

// apply folds one frame into the retained snapshots and publishes the
// reconciled view.
func (c *Client) apply(frame Frame) {
	switch frame.Type {
	case frameTypePicks:
		c.userPicks = frame.UserPicks
		c.opponentPicks = frame.OpponentPicks
	case frameTypeScores:
		c.scores = frame.Scores
		c.userPoints = frame.UserPoints
		c.opponentPoints = frame.OpponentPoints
	default:
		log.Warn().Str("frame_type", frame.Type).Msg("unknown live frame type - ignoring")
		return
	}

	next := feed.Merge(c.prev, c.userPicks, c.opponentPicks, c.who)
	changed := feed.DetectStatusChanges(c.prev, next)
	c.prev = next

	update := Update{
		Feed:     next,
		Changed:  changed,
		Summary:  feed.Summarize(next),
		Momentum: momentum.Score(c.userPicks, c.opponentPicks, c.who.CurrentUserID, c.userPoints, c.opponentPoints, c.scoring),
		Scores:   c.scores,
	}

	select {
	case c.updates <- update:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- update:
	default:
	}
}
