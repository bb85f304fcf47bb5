package eventconsumers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventpubsub"
)

type fakeChainReader struct {
	chains map[string]*eventmodels.CachedOptionChain
}

func (r *fakeChainReader) GetOptionChain(symbol string) (*eventmodels.CachedOptionChain, bool) {
	chain, found := r.chains[symbol]
	return chain, found
}

func newTestMirror(t *testing.T) (*OptionChainRedisMirror, *miniredis.Miniredis, *redis.Client, *fakeChainReader) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	reader := &fakeChainReader{chains: map[string]*eventmodels.CachedOptionChain{
		"SPY": {Symbol: "SPY", UnderlyingPrice: 450, DataSource: eventmodels.DataSourceStreaming},
	}}

	return NewOptionChainRedisMirror(rdb, reader, 5*time.Second), mr, rdb, reader
}

func TestOptionChainRedisMirror(t *testing.T) {
	t.Run("write chain sets key with stale threshold ttl", func(t *testing.T) {
		mirror, mr, _, _ := newTestMirror(t)

		require.NoError(t, mirror.WriteChain(context.Background(), "SPY"))

		raw, err := mr.Get(OptionChainKey("SPY"))
		require.NoError(t, err)

		var chain eventmodels.CachedOptionChain
		require.NoError(t, json.Unmarshal([]byte(raw), &chain))
		assert.Equal(t, 450.0, chain.UnderlyingPrice)
		assert.Equal(t, 5*time.Second, mr.TTL(OptionChainKey("SPY")))

		mr.FastForward(6 * time.Second)
		assert.False(t, mr.Exists(OptionChainKey("SPY")))
	})

	t.Run("absent chain is not written", func(t *testing.T) {
		mirror, mr, _, _ := newTestMirror(t)

		require.NoError(t, mirror.WriteChain(context.Background(), "QQQ"))
		assert.False(t, mr.Exists(OptionChainKey("QQQ")))
	})

	t.Run("bus events update and remove the mirrored chain", func(t *testing.T) {
		mirror, mr, rdb, _ := newTestMirror(t)
		bus := eventpubsub.NewBus()
		require.NoError(t, mirror.Start(bus))
		defer mirror.Stop()

		sub := rdb.Subscribe(context.Background(), OptionChainChannel("SPY"))
		defer sub.Close()
		_, err := sub.Receive(context.Background())
		require.NoError(t, err)

		bus.Publish("test", eventmodels.OptionChainUpdatedEventName, &eventmodels.OptionChainUpdatedEvent{
			Symbol:        "SPY",
			ContractID:    1,
			ChangedFields: []string{"bid"},
		})
		bus.WaitAsync()

		assert.True(t, mr.Exists(OptionChainKey("SPY")))

		select {
		case msg := <-sub.Channel():
			var ev eventmodels.OptionChainUpdatedEvent
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			assert.Equal(t, eventmodels.ContractID(1), ev.ContractID)
		case <-time.After(2 * time.Second):
			t.Fatal("no update published")
		}

		bus.Publish("test", eventmodels.StreamingStoppedEventName, &eventmodels.StreamingLifecycleEvent{Symbol: "SPY"})
		bus.WaitAsync()

		assert.False(t, mr.Exists(OptionChainKey("SPY")))
	})

	t.Run("stop detaches from the bus", func(t *testing.T) {
		mirror, _, _, _ := newTestMirror(t)
		bus := eventpubsub.NewBus()
		require.NoError(t, mirror.Start(bus))

		mirror.Stop()

		assert.Equal(t, 0, bus.SubscriberCount(eventmodels.OptionChainUpdatedEventName))
		assert.Equal(t, 0, bus.SubscriberCount(eventmodels.StreamingStoppedEventName))
	})
}
