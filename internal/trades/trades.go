// Package trades subscribes to the external order-execution service's
// trade lifecycle channel on Redis and routes placed/settled events into
// chart sessions. The engine is display-only here: it never settles a
// trade itself.
package trades

import (
	"context"
	"encoding/json"
	"log/slog"

	"chartengine/internal/model"

	"github.com/go-redis/redis/v8"
)

// Channel is the Redis PubSub channel trade events arrive on.
const Channel = "pub:trades"

// Subscriber listens on the trade channel and dispatches decoded events.
type Subscriber struct {
	rdb *redis.Client
	log *slog.Logger

	// OnEvent receives every decoded trade event.
	OnEvent func(model.TradeEvent)
}

// NewSubscriber creates a Subscriber on the given Redis client.
func NewSubscriber(rdb *redis.Client, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{rdb: rdb, log: log}
}

// Run subscribes and routes trade events until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	s.log.Info("subscribed to trade events", "channel", Channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch([]byte(msg.Payload))
		}
	}
}

// dispatch decodes one raw payload and routes it. Malformed payloads and
// unknown kinds are logged and dropped so a bad producer cannot wedge
// the stream.
func (s *Subscriber) dispatch(payload []byte) {
	var ev model.TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.log.Warn("bad trade event payload", "err", err)
		return
	}
	if ev.Kind != model.TradePlaced && ev.Kind != model.TradeSettled {
		s.log.Warn("unknown trade event kind", "kind", ev.Kind)
		return
	}
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}

// Publisher emits trade events; used by the simulated settlement service
// and tests.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a Publisher on the given Redis client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish serializes the event onto the trade channel.
func (p *Publisher) Publish(ctx context.Context, ev model.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel, payload).Err()
}
