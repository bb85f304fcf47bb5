package eventconsumers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventpubsub"
)

const redisWriteTimeout = 2 * time.Second

type IOptionChainReader interface {
	GetOptionChain(symbol string) (*eventmodels.CachedOptionChain, bool)
}

// OptionChainRedisMirror copies fresh chains into Redis for out-of-process
// readers. Keys expire after the stale threshold, so a Redis read obeys the
// same freshness rule as an in-process read.
type OptionChainRedisMirror struct {
	client       *redis.Client
	reader       IOptionChainReader
	ttl          time.Duration
	unsubscribes []func()
}

func NewOptionChainRedisMirror(client *redis.Client, reader IOptionChainReader, ttl time.Duration) *OptionChainRedisMirror {
	return &OptionChainRedisMirror{
		client: client,
		reader: reader,
		ttl:    ttl,
	}
}

func OptionChainKey(symbol string) string {
	return fmt.Sprintf("option_chain:%s", symbol)
}

func OptionChainChannel(symbol string) string {
	return fmt.Sprintf("option_chain_updates:%s", symbol)
}

func (m *OptionChainRedisMirror) Start(bus *eventpubsub.Bus) error {
	unsub, err := bus.Subscribe("OptionChainRedisMirror", eventmodels.OptionChainUpdatedEventName, m.handleUpdated)
	if err != nil {
		return fmt.Errorf("OptionChainRedisMirror.Start: %w", err)
	}
	m.unsubscribes = append(m.unsubscribes, unsub)

	unsub, err = bus.Subscribe("OptionChainRedisMirror", eventmodels.StreamingStartedEventName, m.handleStarted)
	if err != nil {
		m.Stop()
		return fmt.Errorf("OptionChainRedisMirror.Start: %w", err)
	}
	m.unsubscribes = append(m.unsubscribes, unsub)

	unsub, err = bus.Subscribe("OptionChainRedisMirror", eventmodels.StreamingStoppedEventName, m.handleStopped)
	if err != nil {
		m.Stop()
		return fmt.Errorf("OptionChainRedisMirror.Start: %w", err)
	}
	m.unsubscribes = append(m.unsubscribes, unsub)

	return nil
}

func (m *OptionChainRedisMirror) Stop() {
	for _, unsub := range m.unsubscribes {
		unsub()
	}

	m.unsubscribes = nil
}

// WriteChain stores the current chain for symbol. A chain that is absent or
// stale is not written.
func (m *OptionChainRedisMirror) WriteChain(ctx context.Context, symbol string) error {
	chain, found := m.reader.GetOptionChain(symbol)
	if !found {
		return nil
	}

	payload, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("OptionChainRedisMirror.WriteChain: failed to marshal chain: %w", err)
	}

	if err := m.client.Set(ctx, OptionChainKey(symbol), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("OptionChainRedisMirror.WriteChain: %w", err)
	}

	return nil
}

func (m *OptionChainRedisMirror) writeUpdate(ctx context.Context, ev *eventmodels.OptionChainUpdatedEvent) error {
	chain, found := m.reader.GetOptionChain(ev.Symbol)
	if !found {
		return nil
	}

	chainPayload, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}

	eventPayload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, OptionChainKey(ev.Symbol), chainPayload, m.ttl)
	pipe.Publish(ctx, OptionChainChannel(ev.Symbol), eventPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write pipeline: %w", err)
	}

	return nil
}

func (m *OptionChainRedisMirror) handleUpdated(event interface{}) {
	ev, ok := event.(*eventmodels.OptionChainUpdatedEvent)
	if !ok {
		log.Warnf("OptionChainRedisMirror: unexpected event type %T", event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	if err := m.writeUpdate(ctx, ev); err != nil {
		log.WithField("symbol", ev.Symbol).Errorf("OptionChainRedisMirror: %v", err)
	}
}

func (m *OptionChainRedisMirror) handleStarted(event interface{}) {
	ev, ok := event.(*eventmodels.StreamingLifecycleEvent)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	if err := m.WriteChain(ctx, ev.Symbol); err != nil {
		log.WithField("symbol", ev.Symbol).Errorf("OptionChainRedisMirror: %v", err)
	}
}

func (m *OptionChainRedisMirror) handleStopped(event interface{}) {
	ev, ok := event.(*eventmodels.StreamingLifecycleEvent)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	if err := m.client.Del(ctx, OptionChainKey(ev.Symbol)).Err(); err != nil {
		log.WithField("symbol", ev.Symbol).Errorf("OptionChainRedisMirror: failed to delete chain: %v", err)
	}
}
