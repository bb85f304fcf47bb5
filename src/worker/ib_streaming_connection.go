package worker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/utils"
)

const (
	ibReadTimeout       = 30 * time.Second
	ibKeepAliveInterval = time.Minute
	ibReconnectBackoff  = 5 * time.Second
	ibTopicMarketData   = "smd"
	ibTopicSystem       = "system"
	ibTopicStatus       = "sts"
	ibTopicTic          = "tic"
	ibTopicError        = "error"
)

func IBSubscribe(conId string, fields []string) []byte {
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, fmt.Sprintf(`"%s"`, f))
	}

	return []byte(fmt.Sprintf(`smd+%s+{"fields":[%s]}`, conId, strings.Join(quoted, ",")))
}

func IBUnsubscribe(conId string) []byte {
	return []byte(fmt.Sprintf(`umd+%s+{}`, conId))
}

type IBIncomingMessage struct {
	Topic   string `json:"topic"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IBStreamingConnection is a Client Portal websocket multiplexing market data
// subscriptions for many contracts. Subscriptions survive reconnects.
type IBStreamingConnection struct {
	serverURL   string
	bearerToken string
	dialer      websocket.Dialer

	mu            sync.Mutex
	conn          *websocket.Conn
	connected     bool
	started       bool
	cancel        context.CancelFunc
	subscriptions map[eventmodels.ContractID]eventmodels.SubscriptionMetadata

	listenersMu sync.RWMutex
	listeners   map[uuid.UUID]eventmodels.MarketDataListener
	order       []uuid.UUID

	writeMu sync.Mutex
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewIBStreamingConnection(serverURL, bearerToken string) *IBStreamingConnection {
	dialer := *websocket.DefaultDialer

	// the gateway serves a self-signed certificate on localhost
	dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &IBStreamingConnection{
		serverURL:     serverURL,
		bearerToken:   bearerToken,
		dialer:        dialer,
		subscriptions: make(map[eventmodels.ContractID]eventmodels.SubscriptionMetadata),
		listeners:     make(map[uuid.UUID]eventmodels.MarketDataListener),
		now:           time.Now,
	}
}

func (c *IBStreamingConnection) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, fmt.Errorf("IBStreamingConnection: invalid url: %w", err)
	}

	log.Infof("connecting to %s", u.String())

	header := http.Header{}
	if c.bearerToken != "" {
		header.Add("Authorization", fmt.Sprintf("Bearer %s", c.bearerToken))
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("IBStreamingConnection: dial failed: %w", err)
	}

	if conn == nil {
		return nil, fmt.Errorf("IBStreamingConnection: failed to connect to websocket server: connection is nil")
	}

	return conn, nil
}

// Connect opens the websocket and starts the read and keepalive loops. It is a
// no-op when already connected. While the read loop is redialing it returns
// ErrNotConnected rather than opening a second socket. The loops run until Close.
func (c *IBStreamingConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}

	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("Connect: reconnect in progress: %w", eventmodels.ErrNotConnected)
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("Connect: %w", err)
	}

	c.mu.Lock()
	if c.started {
		connected := c.connected
		c.mu.Unlock()
		conn.Close()

		if connected {
			return nil
		}

		return fmt.Errorf("Connect: reconnect in progress: %w", eventmodels.ErrNotConnected)
	}

	c.conn = conn
	c.connected = true
	c.started = true

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go c.readLoop(loopCtx)
	go c.keepAlive(loopCtx)
	c.mu.Unlock()

	if err := c.resubscribeAll(); err != nil {
		log.Warnf("Connect: resubscribe failed: %v", err)
	}

	return nil
}

func (c *IBStreamingConnection) write(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return eventmodels.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write message %s: %w", payload, err)
	}

	return nil
}

func fieldsFor(meta eventmodels.SubscriptionMetadata) []string {
	if meta.IsUnderlying {
		return utils.IBUnderlyingFields
	}

	return utils.IBOptionFields
}

// Subscribe starts market data for id. Repeated calls for the same id are ignored.
func (c *IBStreamingConnection) Subscribe(id eventmodels.ContractID, meta eventmodels.SubscriptionMetadata) error {
	c.mu.Lock()
	if _, found := c.subscriptions[id]; found {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.write(IBSubscribe(id.String(), fieldsFor(meta))); err != nil {
		return fmt.Errorf("Subscribe %v: %w", id, err)
	}

	c.mu.Lock()
	c.subscriptions[id] = meta
	c.mu.Unlock()

	return nil
}

func (c *IBStreamingConnection) Unsubscribe(id eventmodels.ContractID) error {
	c.mu.Lock()
	_, found := c.subscriptions[id]
	delete(c.subscriptions, id)
	c.mu.Unlock()

	if !found {
		return nil
	}

	if err := c.write(IBUnsubscribe(id.String())); err != nil {
		return fmt.Errorf("Unsubscribe %v: %w", id, err)
	}

	return nil
}

func (c *IBStreamingConnection) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.subscriptions)
}

func (c *IBStreamingConnection) resubscribeAll() error {
	c.mu.Lock()
	pending := make(map[eventmodels.ContractID]eventmodels.SubscriptionMetadata, len(c.subscriptions))
	for id, meta := range c.subscriptions {
		pending[id] = meta
	}
	c.mu.Unlock()

	for id, meta := range pending {
		if err := c.write(IBSubscribe(id.String(), fieldsFor(meta))); err != nil {
			return fmt.Errorf("resubscribeAll: %w", err)
		}
	}

	if len(pending) > 0 {
		log.Infof("resubscribed %d contracts", len(pending))
	}

	return nil
}

// OnUpdate registers a listener and returns a func that removes it.
func (c *IBStreamingConnection) OnUpdate(listener eventmodels.MarketDataListener) func() {
	id := uuid.New()

	c.listenersMu.Lock()
	c.listeners[id] = listener
	c.order = append(c.order, id)
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()

		delete(c.listeners, id)
		for i, o := range c.order {
			if o == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

func (c *IBStreamingConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Close stops the loops and closes the socket. Subscriptions are forgotten.
func (c *IBStreamingConnection) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.connected = false
	c.started = false
	c.cancel = nil
	c.subscriptions = make(map[eventmodels.ContractID]eventmodels.SubscriptionMetadata)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.wg.Wait()

	return err
}

func (c *IBStreamingConnection) dispatch(tick *eventmodels.MarketDataTick) {
	c.listenersMu.RLock()
	listeners := make([]eventmodels.MarketDataListener, 0, len(c.order))
	for _, id := range c.order {
		listeners = append(listeners, c.listeners[id])
	}
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(tick)
	}
}

func (c *IBStreamingConnection) reconnect(ctx context.Context, old *websocket.Conn) {
	c.mu.Lock()
	if c.conn == old {
		c.connected = false
	}
	c.mu.Unlock()

	if old != nil {
		if e := old.Close(); e != nil {
			log.Debugf("error closing old connection: %v", e)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		newConn, err := c.dial(ctx)
		if err != nil {
			log.Errorf("failed to reconnect: %v", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(ibReconnectBackoff):
			}

			continue
		}

		c.mu.Lock()
		c.conn = newConn
		c.connected = true
		c.mu.Unlock()

		if err := c.resubscribeAll(); err != nil {
			log.Errorf("reconnect: %v", err)
		}

		return
	}
}

func (c *IBStreamingConnection) readLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping IBStreamingConnection read loop")
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			c.reconnect(ctx, nil)
			continue
		}

		conn.SetReadDeadline(time.Now().UTC().Add(ibReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.Errorf("ReadMessage(): %v", err)
			c.reconnect(ctx, conn)
			continue
		}

		c.handleMessage(message)
	}
}

func (c *IBStreamingConnection) handleMessage(message []byte) {
	var msg IBIncomingMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Errorf("IBStreamingConnection: failed to unmarshal message: %v", err)
		return
	}

	switch {
	case msg.Topic == "":
		log.Warnf("IBStreamingConnection: unknown message: %v", string(message))
	case msg.Topic == ibTopicSystem, msg.Topic == ibTopicStatus, msg.Topic == ibTopicTic:
		return
	case msg.Topic == ibTopicMarketData, msg.Topic == ibTopicError:
		log.Errorf("IBStreamingConnection: %s code %d: %s", msg.Topic, msg.Code, msg.Error)
	case strings.HasPrefix(msg.Topic, ibTopicMarketData+"+"):
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(message, &fields); err != nil {
			log.Errorf("IBStreamingConnection: failed to unmarshal fields: %v", err)
			return
		}

		tick, err := utils.IBFieldsToTick(fields)
		if err != nil {
			log.Errorf("IBStreamingConnection: failed to convert message to tick: %v", err)
			return
		}

		if tick.ContractID == 0 {
			id, err := eventmodels.ParseContractID(strings.TrimPrefix(msg.Topic, ibTopicMarketData+"+"))
			if err != nil {
				log.Warnf("IBStreamingConnection: no conid in topic %s", msg.Topic)
				return
			}

			tick.ContractID = id
		}

		if tick.Timestamp.IsZero() {
			tick.Timestamp = c.now().UTC()
		}

		if tick.IsEmpty() {
			return
		}

		c.dispatch(tick)
	default:
		log.Debugf("IBStreamingConnection: ignoring topic %v", msg.Topic)
	}
}

func (c *IBStreamingConnection) keepAlive(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(ibKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write([]byte(ibTopicTic)); err != nil {
				log.Debugf("keepAlive: %v", err)
			}
		}
	}
}
