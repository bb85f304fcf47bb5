package eventmodels

import (
	"context"
	"sync"
)

type MockStreamingConnection struct {
	mu            sync.Mutex
	connected     bool
	ConnectErr    error
	SubscribeErr  error
	attempts      int
	ConnectCalls  int
	Subscribed    []ContractID
	Unsubscribed  []ContractID
	subscriptions map[ContractID]SubscriptionMetadata
	listeners     map[int]MarketDataListener
	nextListener  int

	// SubscribeGate, when set, blocks Subscribe until a value is received.
	// The mock's lock is not held while blocked.
	SubscribeGate chan struct{}
}

func (m *MockStreamingConnection) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConnectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}

	m.connected = true
	return nil
}

func (m *MockStreamingConnection) Subscribe(id ContractID, meta SubscriptionMetadata) error {
	m.mu.Lock()
	m.attempts++
	gate := m.SubscribeGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}

	m.Subscribed = append(m.Subscribed, id)
	m.subscriptions[id] = meta
	return nil
}

func (m *MockStreamingConnection) Unsubscribe(id ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Unsubscribed = append(m.Unsubscribed, id)
	delete(m.subscriptions, id)
	return nil
}

func (m *MockStreamingConnection) OnUpdate(listener MarketDataListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *MockStreamingConnection) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connected
}

// Emit delivers a tick to every registered listener, in the caller's goroutine.
func (m *MockStreamingConnection) Emit(tick *MarketDataTick) {
	m.mu.Lock()
	listeners := make([]MarketDataListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(tick)
	}
}

func (m *MockStreamingConnection) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.listeners)
}

func (m *MockStreamingConnection) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subscriptions)
}

func (m *MockStreamingConnection) SubscribeCalls() []ContractID {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ContractID(nil), m.Subscribed...)
}

// SubscribeAttempts counts Subscribe calls, including failed and blocked ones.
func (m *MockStreamingConnection) SubscribeAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.attempts
}

// SetSubscribeErr makes later Subscribe calls fail with err, or succeed when nil.
func (m *MockStreamingConnection) SetSubscribeErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SubscribeErr = err
}

func (m *MockStreamingConnection) UnsubscribeCalls() []ContractID {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ContractID(nil), m.Unsubscribed...)
}

func NewMockStreamingConnection() *MockStreamingConnection {
	return &MockStreamingConnection{
		subscriptions: make(map[ContractID]SubscriptionMetadata),
		listeners:     make(map[int]MarketDataListener),
	}
}
