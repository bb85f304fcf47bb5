package eventpubsub

import (
	"fmt"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
)

type Handler func(event interface{})

type subscriber struct {
	name string
	fn   Handler
}

// Bus fans events out to named subscribers. Each topic is bound once to a
// transactional async EventBus callback, so deliveries on a topic run one at a
// time in publish order. Individual subscribers are tracked here so they can be
// removed independently.
type Bus struct {
	bus         EventBus.Bus
	mu          sync.RWMutex
	subscribers map[eventmodels.EventName]map[uuid.UUID]subscriber
	order       map[eventmodels.EventName][]uuid.UUID
}

func NewBus() *Bus {
	return &Bus{
		bus:         EventBus.New(),
		subscribers: make(map[eventmodels.EventName]map[uuid.UUID]subscriber),
		order:       make(map[eventmodels.EventName][]uuid.UUID),
	}
}

func (b *Bus) Publish(publisherName string, topic eventmodels.EventName, event interface{}) {
	log.Tracef("[%v] Published to topic %s", publisherName, topic)
	b.bus.Publish(string(topic), event)
}

// Subscribe registers fn for topic and returns a func that removes it.
func (b *Bus) Subscribe(subscriberName string, topic eventmodels.EventName, fn Handler) (func(), error) {
	id := uuid.New()

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, found := b.subscribers[topic]
	if !found {
		if err := b.bus.SubscribeAsync(string(topic), b.dispatcher(topic), true); err != nil {
			return nil, fmt.Errorf("[%v] failed to subscribe to topic %s: %w", subscriberName, topic, err)
		}

		subs = make(map[uuid.UUID]subscriber)
		b.subscribers[topic] = subs
	}

	subs[id] = subscriber{name: subscriberName, fn: fn}
	b.order[topic] = append(b.order[topic], id)

	log.Infof("[%v] Subscribed to topic %s", subscriberName, topic)

	return func() {
		b.unsubscribe(topic, id)
	}, nil
}

func (b *Bus) unsubscribe(topic eventmodels.EventName, id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, found := b.subscribers[topic][id]
	if !found {
		return
	}

	delete(b.subscribers[topic], id)
	ids := b.order[topic]
	for i, o := range ids {
		if o == id {
			b.order[topic] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	log.Infof("[%v] Unsubscribed from topic %s", sub.name, topic)
}

func (b *Bus) SubscriberCount(topic eventmodels.EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[topic])
}

// WaitAsync blocks until in-flight deliveries finish.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

func (b *Bus) dispatcher(topic eventmodels.EventName) func(event interface{}) {
	return func(event interface{}) {
		b.mu.RLock()
		subs := make([]subscriber, 0, len(b.order[topic]))
		for _, id := range b.order[topic] {
			subs = append(subs, b.subscribers[topic][id])
		}
		b.mu.RUnlock()

		for _, sub := range subs {
			deliver(topic, sub, event)
		}
	}
}

func deliver(topic eventmodels.EventName, sub subscriber, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%v] subscriber panicked on topic %s: %v", sub.name, topic, r)
		}
	}()

	sub.fn(event)
}
