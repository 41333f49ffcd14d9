package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tokenledger/internal/ledger"
)

const (
	// KindTokenCreated is emitted once per token.
	KindTokenCreated = "token_created"
	// KindMinted is emitted when new tokens are credited.
	KindMinted = "minted"
	// KindBurned is emitted when tokens leave circulation.
	KindBurned = "burned"
	// KindTransferred is emitted for an applied transfer batch.
	KindTransferred = "transferred"
	// KindAccountRemoved is emitted when an account falls under the existential deposit.
	KindAccountRemoved = "account_removed"
	// KindPolicyChanged is emitted when the transfer policy is replaced.
	KindPolicyChanged = "policy_changed"
	// KindPatronageRateChanged is emitted on a patronage rate update.
	KindPatronageRateChanged = "patronage_rate_changed"
	// KindPatronageClaimed is emitted when accrued patronage is paid out.
	KindPatronageClaimed = "patronage_claimed"
	// KindReserved is emitted when free balance is set aside.
	KindReserved = "reserved"
	// KindUnreserved is emitted when reserved balance is released.
	KindUnreserved = "unreserved"

	// DefaultChannel is the Redis channel events are published on.
	DefaultChannel = "ledger:events"
)

// Event describes a committed state change. Facts carries the before/after
// values relevant to Kind.
type Event struct {
	ID      string             `json:"id"`
	Kind    string             `json:"kind"`
	Token   ledger.TokenID     `json:"token_id"`
	Account *ledger.AccountID  `json:"account_id,omitempty"`
	Block   ledger.BlockNumber `json:"block"`
	Facts   map[string]any     `json:"facts,omitempty"`
	At      time.Time          `json:"at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind string, token ledger.TokenID, block ledger.BlockNumber, facts map[string]any) Event {
	return Event{
		ID:    uuid.NewString(),
		Kind:  kind,
		Token: token,
		Block: block,
		Facts: facts,
		At:    time.Now().UTC(),
	}
}

// ForAccount sets the account the event concerns.
func (e Event) ForAccount(account ledger.AccountID) Event {
	e.Account = &account
	return e
}

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerSink writes events to the structured logger.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a logging sink.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Publish writes the event to the logger.
func (s *LoggerSink) Publish(_ context.Context, event Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("id", event.ID),
		slog.String("kind", event.Kind),
		slog.Uint64("token_id", uint64(event.Token)),
		slog.Uint64("block", uint64(event.Block)),
	}
	if event.Account != nil {
		attrs = append(attrs, slog.Uint64("account_id", uint64(*event.Account)))
	}
	if len(event.Facts) > 0 {
		attrs = append(attrs, slog.Any("facts", event.Facts))
	}
	s.logger.Info("ledger event", attrs...)
	return nil
}

// RedisSink publishes events as JSON on a Redis channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink builds a Redis publisher. An empty channel selects DefaultChannel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Publish sends the event to the channel.
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Publish delivers to all sinks even when some fail.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
