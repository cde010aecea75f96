// Package events consumes push-delivered matchmaking notifications and routes
// them into the queue session controller. Push delivery and status polling
// are the two paths for the same transitions; both land in the controller's
// idempotent SetMatchFound/SetQueueExpired, so arrival order does not matter.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/duelpicks/duelcore/internal/api"
)

// SessionSink is the controller surface the consumer drives.
type SessionSink interface {
	SetMatchFound(matchID string, match *api.Match)
	SetQueueExpired(reason string, refundedAmount int64)
}

// ConsumerConfig holds NATS connection settings.
type ConsumerConfig struct {
	URL           string
	SubjectPrefix string // per-user subject is "<prefix>.<userID>"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig mirrors production defaults: reconnect forever with a
// short wait, matchmaking events under "match.events".
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "match.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Consumer subscribes to the caller's matchmaking event subject.
type Consumer struct {
	sink   SessionSink
	config ConsumerConfig
	nc     *nats.Conn
	sub    *nats.Subscription
}

// NewConsumer connects to NATS. Start must be called to begin receiving.
func NewConsumer(sink SessionSink, config ConsumerConfig) (*Consumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Consumer{sink: sink, config: config, nc: nc}, nil
}

// Start subscribes to the given user's event subject.
func (c *Consumer) Start(userID string) error {
	subject := fmt.Sprintf("%s.%s", c.config.SubjectPrefix, userID)
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		c.handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.sub = sub
	log.Info().Str("subject", subject).Msg("push event consumer started")
	return nil
}

// handle decodes one envelope and routes it. Split out from the subscription
// callback so tests feed raw payloads without a broker.
func (c *Consumer) handle(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Msg("failed to decode push event envelope")
		return
	}

	switch env.Type {
	case TypeMatchFound:
		var payload MatchFoundPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Error().Err(err).Msg("failed to decode MatchFound payload")
			return
		}
		matchID := payload.MatchID
		if matchID == "" && payload.Match != nil {
			matchID = payload.Match.ID
		}
		if matchID == "" {
			log.Error().Msg("MatchFound event without a match id")
			return
		}
		c.sink.SetMatchFound(matchID, payload.Match)

	case TypeQueueExpired:
		var payload QueueExpiredPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Error().Err(err).Msg("failed to decode QueueExpired payload")
			return
		}
		c.sink.SetQueueExpired(payload.Reason, payload.RefundedAmount)

	default:
		log.Warn().Str("event_type", string(env.Type)).Msg("unknown push event type - ignoring")
	}
}

// Close drains the subscription and closes the connection.
func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
}
