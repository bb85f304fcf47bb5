package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
)

type fakeGateway struct {
	mu       sync.Mutex
	received []string
	conns    []*websocket.Conn
	auth     string
	server   *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{}
	upgrader := websocket.Upgrader{}

	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		g.mu.Lock()
		g.auth = r.Header.Get("Authorization")
		g.conns = append(g.conns, conn)
		g.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			g.mu.Lock()
			g.received = append(g.received, string(msg))
			g.mu.Unlock()
		}
	}))

	t.Cleanup(g.server.Close)

	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func (g *fakeGateway) messages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.received...)
}

func (g *fakeGateway) send(t *testing.T, payload string) {
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.conns) > 0
	}, 2*time.Second, 10*time.Millisecond)

	g.mu.Lock()
	conn := g.conns[len(g.conns)-1]
	g.mu.Unlock()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestIBSubscribe(t *testing.T) {
	payload := IBSubscribe("265598", []string{"31", "84"})
	assert.Equal(t, `smd+265598+{"fields":["31","84"]}`, string(payload))
	assert.Equal(t, `umd+265598+{}`, string(IBUnsubscribe("265598")))
}

func TestIBStreamingConnection(t *testing.T) {
	t.Run("subscribe is deduplicated and unsubscribe is sent once", func(t *testing.T) {
		gateway := newFakeGateway(t)
		conn := NewIBStreamingConnection(gateway.url(), "token")
		t.Cleanup(func() { conn.Close() })

		require.NoError(t, conn.Connect(context.Background()))
		require.NoError(t, conn.Connect(context.Background()))
		assert.True(t, conn.IsConnected())

		meta := eventmodels.SubscriptionMetadata{Symbol: "SPY", IsUnderlying: true}
		require.NoError(t, conn.Subscribe(756733, meta))
		require.NoError(t, conn.Subscribe(756733, meta))
		assert.Equal(t, 1, conn.SubscriptionCount())

		require.NoError(t, conn.Unsubscribe(756733))
		require.NoError(t, conn.Unsubscribe(756733))
		assert.Equal(t, 0, conn.SubscriptionCount())

		require.Eventually(t, func() bool {
			return len(gateway.messages()) == 2
		}, 2*time.Second, 10*time.Millisecond)

		msgs := gateway.messages()
		assert.True(t, strings.HasPrefix(msgs[0], "smd+756733+"))
		assert.Equal(t, "umd+756733+{}", msgs[1])

		gateway.mu.Lock()
		assert.Equal(t, "Bearer token", gateway.auth)
		gateway.mu.Unlock()
	})

	t.Run("market data messages reach listeners as sparse ticks", func(t *testing.T) {
		gateway := newFakeGateway(t)
		conn := NewIBStreamingConnection(gateway.url(), "")
		t.Cleanup(func() { conn.Close() })

		ticks := make(chan *eventmodels.MarketDataTick, 4)
		unsubscribe := conn.OnUpdate(func(tick *eventmodels.MarketDataTick) {
			ticks <- tick
		})

		require.NoError(t, conn.Connect(context.Background()))

		gateway.send(t, `{"topic":"system","success":"user"}`)
		gateway.send(t, `{"topic":"smd+700001","conid":700001,"_updated":1784210400000,"84":"1.25","86":"1.30"}`)

		var tick *eventmodels.MarketDataTick
		select {
		case tick = <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("no tick received")
		}

		assert.Equal(t, eventmodels.ContractID(700001), tick.ContractID)
		require.NotNil(t, tick.Bid)
		assert.Equal(t, 1.25, *tick.Bid)
		require.NotNil(t, tick.Ask)
		assert.Equal(t, 1.30, *tick.Ask)
		assert.Nil(t, tick.Last)
		assert.Equal(t, time.UnixMilli(1784210400000).UTC(), tick.Timestamp)

		unsubscribe()
		gateway.send(t, `{"topic":"smd+700001","conid":700001,"84":"1.20"}`)

		select {
		case <-ticks:
			t.Fatal("listener was not removed")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("conid falls back to the topic", func(t *testing.T) {
		gateway := newFakeGateway(t)
		conn := NewIBStreamingConnection(gateway.url(), "")
		t.Cleanup(func() { conn.Close() })

		ticks := make(chan *eventmodels.MarketDataTick, 1)
		conn.OnUpdate(func(tick *eventmodels.MarketDataTick) {
			ticks <- tick
		})

		require.NoError(t, conn.Connect(context.Background()))
		gateway.send(t, `{"topic":"smd+700002","31":"2.10"}`)

		select {
		case tick := <-ticks:
			assert.Equal(t, eventmodels.ContractID(700002), tick.ContractID)
			assert.False(t, tick.Timestamp.IsZero())
		case <-time.After(2 * time.Second):
			t.Fatal("no tick received")
		}
	})

	t.Run("subscribe before connect fails", func(t *testing.T) {
		conn := NewIBStreamingConnection("ws://127.0.0.1:1", "")

		err := conn.Subscribe(1, eventmodels.SubscriptionMetadata{})
		assert.ErrorIs(t, err, eventmodels.ErrNotConnected)
		assert.Equal(t, 0, conn.SubscriptionCount())
	})

	t.Run("connect while the read loop is redialing opens no second socket", func(t *testing.T) {
		gateway := newFakeGateway(t)
		conn := NewIBStreamingConnection(gateway.url(), "")

		conn.mu.Lock()
		conn.started = true
		conn.connected = false
		conn.mu.Unlock()

		err := conn.Connect(context.Background())
		assert.ErrorIs(t, err, eventmodels.ErrNotConnected)
		assert.False(t, conn.IsConnected())

		gateway.mu.Lock()
		defer gateway.mu.Unlock()
		assert.Empty(t, gateway.conns)
	})
}
