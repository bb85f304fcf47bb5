package eventconsumers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventpubsub"
	"github.com/jiaming2012/option-chain-stream/src/eventservices"
)

const scheduledStartRetryDelay = time.Minute

type streamPhase int

const (
	phaseStarting streamPhase = iota
	phaseStreaming
	phaseDegraded
)

type symbolState struct {
	phase streamPhase
	token uint64
}

type subscriptionRequest struct {
	id   eventmodels.ContractID
	meta eventmodels.SubscriptionMetadata
}

type AfterFunc func(d time.Duration, fn func()) (stop func() bool)

func defaultAfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// OptionChainStreamingCache keeps a live, field-merged option chain per symbol
// from one shared streaming connection, bootstrapped and periodically corrected
// by full snapshots.
type OptionChainStreamingCache struct {
	wg      *sync.WaitGroup
	conn    eventmodels.IStreamingConnection
	fetcher eventmodels.ISnapshotFetcher
	bus     *eventpubsub.Bus
	config  eventmodels.StreamingCacheConfig
	session eventmodels.MarketSession

	now       func() time.Time
	afterFunc AfterFunc

	// ioMu serializes subscribe and unsubscribe traffic. It is taken before mu,
	// never while holding it, so tick routing only ever waits on mu.
	ioMu sync.Mutex

	mu                 sync.Mutex
	nextToken          uint64
	stopGenerations    map[string]uint64
	states             map[string]*symbolState
	caches             map[string]*eventmodels.SymbolCache
	subscriptions      map[string][]eventmodels.ContractID
	refreshCancels     map[string]context.CancelFunc
	scheduledStarts    map[string]func() bool
	scheduledStops     map[string]func() bool
	unsubscribeUpdates func()

	ticksApplied      metric.Int64Counter
	ticksUnmatched    metric.Int64Counter
	refreshFailures   metric.Int64Counter
	bootstrapFailures metric.Int64Counter
}

func NewOptionChainStreamingCache(wg *sync.WaitGroup, conn eventmodels.IStreamingConnection, fetcher eventmodels.ISnapshotFetcher, bus *eventpubsub.Bus, config eventmodels.StreamingCacheConfig) (*OptionChainStreamingCache, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("NewOptionChainStreamingCache: %w", err)
	}

	session, err := config.Session()
	if err != nil {
		return nil, fmt.Errorf("NewOptionChainStreamingCache: %w", err)
	}

	c := &OptionChainStreamingCache{
		wg:              wg,
		conn:            conn,
		fetcher:         fetcher,
		bus:             bus,
		config:          config,
		session:         session,
		now:             time.Now,
		afterFunc:       defaultAfterFunc,
		states:          make(map[string]*symbolState),
		caches:          make(map[string]*eventmodels.SymbolCache),
		subscriptions:   make(map[string][]eventmodels.ContractID),
		refreshCancels:  make(map[string]context.CancelFunc),
		scheduledStarts: make(map[string]func() bool),
		scheduledStops:  make(map[string]func() bool),
		stopGenerations: make(map[string]uint64),
	}

	meter := otel.Meter("OptionChainStreamingCache")

	if c.ticksApplied, err = meter.Int64Counter("option_chain_cache.ticks_applied"); err != nil {
		return nil, fmt.Errorf("NewOptionChainStreamingCache: %w", err)
	}

	if c.ticksUnmatched, err = meter.Int64Counter("option_chain_cache.ticks_unmatched"); err != nil {
		return nil, fmt.Errorf("NewOptionChainStreamingCache: %w", err)
	}

	if c.refreshFailures, err = meter.Int64Counter("option_chain_cache.refresh_failures"); err != nil {
		return nil, fmt.Errorf("NewOptionChainStreamingCache: %w", err)
	}

	if c.bootstrapFailures, err = meter.Int64Counter("option_chain_cache.bootstrap_failures"); err != nil {
		return nil, fmt.Errorf("NewOptionChainStreamingCache: %w", err)
	}

	return c, nil
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", eventmodels.ErrSymbolRequired
	}

	return symbol, nil
}

// isCurrent reports whether token still owns the symbol. Callers hold c.mu.
func (c *OptionChainStreamingCache) isCurrent(symbol string, token uint64) bool {
	state, found := c.states[symbol]
	return found && state.token == token
}

// restoreAfterFailedStart puts the symbol back to its pre-start state. Callers hold c.mu.
func (c *OptionChainStreamingCache) restoreAfterFailedStart(symbol string, token uint64, previous *symbolState) {
	if !c.isCurrent(symbol, token) {
		return
	}

	if previous != nil {
		c.states[symbol] = previous
		return
	}

	delete(c.states, symbol)
}

// StartStreaming bootstraps symbol from a snapshot and subscribes to its
// underlying and every strike. It returns nil without re-subscribing when the
// symbol is already starting or streaming.
func (c *OptionChainStreamingCache) StartStreaming(ctx context.Context, symbol string) error {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return fmt.Errorf("StartStreaming: %w", err)
	}

	tracer := otel.Tracer("OptionChainStreamingCache")
	ctx, span := tracer.Start(ctx, "StartStreaming")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	c.mu.Lock()
	previous, found := c.states[symbol]
	if found && (previous.phase == phaseStarting || previous.phase == phaseStreaming) {
		c.mu.Unlock()
		log.Debugf("StartStreaming: %s already streaming", symbol)
		return nil
	}

	c.nextToken++
	token := c.nextToken
	c.states[symbol] = &symbolState{phase: phaseStarting, token: token}

	if c.unsubscribeUpdates == nil {
		c.unsubscribeUpdates = c.conn.OnUpdate(c.HandleMarketDataUpdate)
	}
	c.mu.Unlock()

	fail := func(cause error) error {
		c.mu.Lock()
		c.restoreAfterFailedStart(symbol, token, previous)
		c.mu.Unlock()

		c.bootstrapFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		log.WithField("symbol", symbol).Errorf("StartStreaming: bootstrap failed: %v", cause)

		return fmt.Errorf("StartStreaming %s: %w: %w", symbol, eventmodels.ErrBootstrapFailed, cause)
	}

	if err := c.conn.Connect(ctx); err != nil {
		return fail(err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.SnapshotTimeout)
	defer cancel()

	snapshot, err := c.fetcher.FetchChain(fetchCtx, symbol)
	if err != nil {
		return fail(err)
	}

	if snapshot == nil {
		return fail(eventmodels.ErrSnapshotMalformed)
	}

	snapshot.Symbol = symbol

	if !snapshot.IsDegraded() && snapshot.UnderlyingContractID == 0 {
		id, found, err := c.fetcher.ResolveContractID(fetchCtx, symbol)
		if err != nil {
			log.WithField("symbol", symbol).Warnf("StartStreaming: failed to resolve underlying contract id: %v", err)
		} else if found {
			snapshot.UnderlyingContractID = id
		}
	}

	now := c.now()
	source := eventmodels.DataSourceStreaming
	if snapshot.IsDegraded() {
		source = eventmodels.DataSourceSnapshotOnly
	}

	cache, err := eventmodels.NewSymbolCache(snapshot, source, now)
	if err != nil {
		return fail(err)
	}

	c.mu.Lock()

	if !c.isCurrent(symbol, token) {
		c.mu.Unlock()
		log.WithField("symbol", symbol).Info("StartStreaming: stopped during bootstrap, discarding snapshot")
		return nil
	}

	if snapshot.IsDegraded() {
		c.caches[symbol] = cache
		c.states[symbol] = &symbolState{phase: phaseDegraded, token: token}
		c.mu.Unlock()

		log.WithField("symbol", symbol).Warn("StartStreaming: no underlying price, serving snapshot only")
		c.publish(eventmodels.StreamingStartedEventName, &eventmodels.StreamingLifecycleEvent{Symbol: symbol, DataSource: eventmodels.DataSourceSnapshotOnly, Timestamp: now})

		return nil
	}
	c.mu.Unlock()

	c.ioMu.Lock()

	ids, err := c.subscribeAll(subscriptionRequests(symbol, cache, nil))
	if err != nil {
		c.ioMu.Unlock()
		return fail(err)
	}

	c.mu.Lock()

	if !c.isCurrent(symbol, token) {
		orphans := c.unownedLocked(ids)
		c.mu.Unlock()

		c.unsubscribeEach(symbol, orphans)
		c.ioMu.Unlock()

		log.WithField("symbol", symbol).Info("StartStreaming: stopped during bootstrap, released subscriptions")
		return nil
	}

	if old, found := c.refreshCancels[symbol]; found {
		old()
	}

	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	c.caches[symbol] = cache
	c.subscriptions[symbol] = ids
	c.refreshCancels[symbol] = refreshCancel
	c.states[symbol] = &symbolState{phase: phaseStreaming, token: token}

	c.wg.Add(1)
	go c.runRefresh(refreshCtx, symbol)

	c.mu.Unlock()
	c.ioMu.Unlock()

	log.WithFields(log.Fields{
		"symbol":        symbol,
		"contracts":     cache.ContractCount(),
		"subscriptions": len(ids),
	}).Info("StartStreaming: streaming")

	c.publish(eventmodels.StreamingStartedEventName, &eventmodels.StreamingLifecycleEvent{Symbol: symbol, DataSource: eventmodels.DataSourceStreaming, Timestamp: now})

	return nil
}

// subscriptionRequests lists the underlying and every tracked contract of
// cache, skipping ids already in registered.
func subscriptionRequests(symbol string, cache *eventmodels.SymbolCache, registered []eventmodels.ContractID) []subscriptionRequest {
	skip := make(map[eventmodels.ContractID]struct{}, len(registered))
	for _, id := range registered {
		skip[id] = struct{}{}
	}

	var requests []subscriptionRequest
	for _, id := range cache.ContractIDs() {
		if _, found := skip[id]; found {
			continue
		}

		meta := eventmodels.SubscriptionMetadata{Symbol: symbol}
		if id == cache.UnderlyingContractID {
			meta.IsUnderlying = true
		} else if contract, found := cache.Lookup(id); found {
			meta.Side = contract.Side
			meta.Strike = contract.Strike
		}

		requests = append(requests, subscriptionRequest{id: id, meta: meta})
	}

	return requests
}

// unownedLocked filters ids down to those no symbol's registry holds. Callers hold c.mu.
func (c *OptionChainStreamingCache) unownedLocked(ids []eventmodels.ContractID) []eventmodels.ContractID {
	owned := make(map[eventmodels.ContractID]struct{})
	for _, registered := range c.subscriptions {
		for _, id := range registered {
			owned[id] = struct{}{}
		}
	}

	var out []eventmodels.ContractID
	for _, id := range ids {
		if _, found := owned[id]; !found {
			out = append(out, id)
		}
	}

	return out
}

// unsubscribeEach releases ids one by one. Callers hold c.ioMu.
func (c *OptionChainStreamingCache) unsubscribeEach(symbol string, ids []eventmodels.ContractID) {
	for _, id := range ids {
		if err := c.conn.Unsubscribe(id); err != nil {
			log.WithField("symbol", symbol).Warnf("failed to unsubscribe %v: %v", id, err)
		}
	}
}

// subscribeAll subscribes every request. On failure everything it subscribed
// is released. Callers hold c.ioMu.
func (c *OptionChainStreamingCache) subscribeAll(requests []subscriptionRequest) ([]eventmodels.ContractID, error) {
	var subscribed []eventmodels.ContractID

	for _, r := range requests {
		if err := c.conn.Subscribe(r.id, r.meta); err != nil {
			for _, id := range subscribed {
				if e := c.conn.Unsubscribe(id); e != nil {
					log.Warnf("subscribeAll: failed to release %v: %v", id, e)
				}
			}

			return nil, fmt.Errorf("subscribe %v: %w", r.id, err)
		}

		subscribed = append(subscribed, r.id)
	}

	return subscribed, nil
}

// subscribeEach subscribes what it can and returns the ids that succeeded
// along with the first failure. Callers hold c.ioMu.
func (c *OptionChainStreamingCache) subscribeEach(symbol string, requests []subscriptionRequest) ([]eventmodels.ContractID, error) {
	var subscribed []eventmodels.ContractID
	var firstErr error

	for _, r := range requests {
		if err := c.conn.Subscribe(r.id, r.meta); err != nil {
			log.WithField("symbol", symbol).Errorf("failed to subscribe %v: %v", r.id, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("subscribe %v: %w", r.id, err)
			}

			continue
		}

		subscribed = append(subscribed, r.id)
	}

	return subscribed, firstErr
}

func (c *OptionChainStreamingCache) runRefresh(ctx context.Context, symbol string) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RefreshSymbol(ctx, symbol); err != nil {
				log.WithField("symbol", symbol).Errorf("refresh failed: %v", err)
			}
		}
	}
}

// RefreshSymbol merges a fresh snapshot into a streaming symbol's cache without
// discarding streamed quotes. Tracked contracts missing a subscription are
// subscribed, including strikes whose subscribe failed on an earlier refresh.
// A failed fetch or a rejected snapshot leaves the cache untouched.
func (c *OptionChainStreamingCache) RefreshSymbol(ctx context.Context, symbol string) error {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return fmt.Errorf("RefreshSymbol: %w", err)
	}

	tracer := otel.Tracer("OptionChainStreamingCache")
	ctx, span := tracer.Start(ctx, "RefreshSymbol")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	c.mu.Lock()
	state, found := c.states[symbol]
	if !found || state.phase != phaseStreaming {
		c.mu.Unlock()
		return nil
	}
	token := state.token
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.SnapshotTimeout)
	defer cancel()

	snapshot, err := c.fetcher.FetchChain(fetchCtx, symbol)
	if err != nil {
		c.refreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		return fmt.Errorf("RefreshSymbol %s: %w", symbol, err)
	}

	if snapshot == nil {
		c.refreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		return fmt.Errorf("RefreshSymbol %s: %w", symbol, eventmodels.ErrSnapshotMalformed)
	}

	c.mu.Lock()

	if !c.isCurrent(symbol, token) {
		c.mu.Unlock()
		return nil
	}

	cache := c.caches[symbol]
	added, mergeErr := cache.MergeRefresh(snapshot, c.now())
	c.mu.Unlock()

	if len(added) > 0 {
		log.WithField("symbol", symbol).Infof("RefreshSymbol: tracking %d new contracts", len(added))
	}

	c.ioMu.Lock()

	// tracked contracts missing from the registry: new strikes, and earlier
	// strikes whose subscribe failed
	c.mu.Lock()
	if !c.isCurrent(symbol, token) {
		c.mu.Unlock()
		c.ioMu.Unlock()
		return nil
	}
	pending := subscriptionRequests(symbol, cache, c.subscriptions[symbol])
	c.mu.Unlock()

	subscribed, subscribeErr := c.subscribeEach(symbol, pending)

	c.mu.Lock()
	if c.isCurrent(symbol, token) {
		c.subscriptions[symbol] = append(c.subscriptions[symbol], subscribed...)
		c.mu.Unlock()
	} else {
		orphans := c.unownedLocked(subscribed)
		c.mu.Unlock()
		c.unsubscribeEach(symbol, orphans)
	}

	c.ioMu.Unlock()

	if mergeErr != nil {
		c.refreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		return fmt.Errorf("RefreshSymbol %s: %w", symbol, mergeErr)
	}

	if subscribeErr != nil {
		c.refreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		return fmt.Errorf("RefreshSymbol %s: %w", symbol, subscribeErr)
	}

	return nil
}

// StopStreaming releases every subscription for symbol, cancels its refresh
// loop and any pending scheduled start or stop, and drops its cache. It is a
// no-op for unknown symbols.
func (c *OptionChainStreamingCache) StopStreaming(symbol string) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return
	}

	c.ioMu.Lock()

	c.mu.Lock()
	_, hadState := c.states[symbol]
	_, hadCache := c.caches[symbol]

	delete(c.states, symbol)
	c.stopGenerations[symbol]++

	if cancel, found := c.refreshCancels[symbol]; found {
		cancel()
		delete(c.refreshCancels, symbol)
	}

	if stop, found := c.scheduledStarts[symbol]; found {
		stop()
		delete(c.scheduledStarts, symbol)
	}

	if stop, found := c.scheduledStops[symbol]; found {
		stop()
		delete(c.scheduledStops, symbol)
	}

	ids := c.subscriptions[symbol]
	delete(c.subscriptions, symbol)
	delete(c.caches, symbol)
	c.mu.Unlock()

	c.unsubscribeEach(symbol, ids)
	c.ioMu.Unlock()

	if hadState || hadCache {
		log.WithField("symbol", symbol).Infof("StopStreaming: released %d subscriptions", len(ids))
		c.publish(eventmodels.StreamingStoppedEventName, &eventmodels.StreamingLifecycleEvent{Symbol: symbol, Timestamp: c.now()})
	}
}

// StopAll stops every symbol, detaches from the connection and cancels every
// pending scheduled start.
func (c *OptionChainStreamingCache) StopAll() {
	c.mu.Lock()
	symbols := make(map[string]struct{})
	for s := range c.states {
		symbols[s] = struct{}{}
	}

	for s := range c.caches {
		symbols[s] = struct{}{}
	}
	c.mu.Unlock()

	for s := range symbols {
		c.StopStreaming(s)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribeUpdates != nil {
		c.unsubscribeUpdates()
		c.unsubscribeUpdates = nil
	}

	for s, stop := range c.scheduledStarts {
		stop()
		delete(c.scheduledStarts, s)
	}

	for s, stop := range c.scheduledStops {
		stop()
		delete(c.scheduledStops, s)
	}

	log.Info("StopAll: stopped all symbols")
}

// GetOptionChain returns a copy of the cached chain, or false when the symbol
// is not cached or its last update is older than the stale threshold.
func (c *OptionChainStreamingCache) GetOptionChain(symbol string) (*eventmodels.CachedOptionChain, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.Lock()
	defer c.mu.Unlock()

	cache, found := c.caches[symbol]
	if !found {
		return nil, false
	}

	if cache.Age(c.now()) > c.config.StaleThreshold {
		return nil, false
	}

	return cache.Chain(), true
}

// HandleMarketDataUpdate routes one tick into the streaming cache that owns
// its contract id. Ticks nobody owns are dropped.
func (c *OptionChainStreamingCache) HandleMarketDataUpdate(tick *eventmodels.MarketDataTick) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("HandleMarketDataUpdate: recovered from panic: %v", r)
		}
	}()

	if tick == nil || tick.ContractID == 0 {
		return
	}

	var event *eventmodels.OptionChainUpdatedEvent

	c.mu.Lock()
	now := c.now()
	for symbol, state := range c.states {
		if state.phase != phaseStreaming {
			continue
		}

		cache, found := c.caches[symbol]
		if !found {
			continue
		}

		if result, ok := cache.ApplyTick(tick, now); ok {
			event = eventmodels.NewOptionChainUpdatedEvent(symbol, tick, result)
			break
		}
	}
	c.mu.Unlock()

	ctx := context.Background()

	if event == nil {
		c.ticksUnmatched.Add(ctx, 1)
		log.Tracef("HandleMarketDataUpdate: no cache owns contract %v", tick.ContractID)
		return
	}

	c.ticksApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", event.Symbol)))

	if len(event.ChangedFields) > 0 {
		c.publish(eventmodels.OptionChainUpdatedEventName, event)
	}
}

// ScheduleMarketOpenStart arms a one-shot start at the next market open, or
// starts right away when called inside the trading window. It returns the
// instant the start is armed for.
func (c *OptionChainStreamingCache) ScheduleMarketOpenStart(symbol string) (time.Time, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return time.Time{}, fmt.Errorf("ScheduleMarketOpenStart: %w", err)
	}

	now := c.now()
	at, immediate := eventservices.PlanMarketOpenStart(now, c.session)

	c.armScheduledStart(symbol, at, now)

	if immediate {
		log.WithField("symbol", symbol).Info("ScheduleMarketOpenStart: market is open, starting now")
	} else {
		log.WithField("symbol", symbol).Infof("ScheduleMarketOpenStart: starting at %s", eventservices.ToExchangeTime(at).Format(time.RFC3339))
	}

	return at, nil
}

func (c *OptionChainStreamingCache) armScheduledStart(symbol string, at, now time.Time) {
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if stop, found := c.scheduledStarts[symbol]; found {
		stop()
	}

	c.scheduledStarts[symbol] = c.afterFunc(delay, func() {
		c.runScheduledStart(symbol)
	})
}

func (c *OptionChainStreamingCache) runScheduledStart(symbol string) {
	c.mu.Lock()
	delete(c.scheduledStarts, symbol)
	generation := c.stopGenerations[symbol]
	c.mu.Unlock()

	err := c.StartStreaming(context.Background(), symbol)
	now := c.now()

	c.mu.Lock()
	stopped := c.stopGenerations[symbol] != generation
	c.mu.Unlock()

	if stopped {
		log.WithField("symbol", symbol).Info("scheduled start superseded by a stop")
		return
	}

	if err != nil {
		if eventservices.IsWithinTradingWindow(now, c.session) {
			log.WithField("symbol", symbol).Warnf("scheduled start failed, retrying in %s: %v", scheduledStartRetryDelay, err)
			c.armScheduledStart(symbol, now.Add(scheduledStartRetryDelay), now)
			return
		}

		log.WithField("symbol", symbol).Warnf("scheduled start failed outside trading hours: %v", err)
		c.ScheduleMarketOpenStart(symbol)
		return
	}

	if c.config.AutoStopAtClose {
		c.scheduleMarketCloseStop(symbol, eventservices.MarketCloseAfter(now, c.session), now)
	}
}

// scheduleMarketCloseStop stops symbol at close and re-arms the next open.
func (c *OptionChainStreamingCache) scheduleMarketCloseStop(symbol string, at, now time.Time) {
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.caches[symbol]; !found {
		return
	}

	if stop, found := c.scheduledStops[symbol]; found {
		stop()
	}

	c.scheduledStops[symbol] = c.afterFunc(delay, func() {
		c.mu.Lock()
		delete(c.scheduledStops, symbol)
		c.mu.Unlock()

		log.WithField("symbol", symbol).Info("market closed, stopping stream")
		c.StopStreaming(symbol)
		c.ScheduleMarketOpenStart(symbol)
	})
}

func (c *OptionChainStreamingCache) GetStatus() eventmodels.StreamingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := eventmodels.StreamingStatus{
		Symbols:          make([]string, 0, len(c.caches)),
		ScheduledSymbols: make([]string, 0, len(c.scheduledStarts)),
		ConnectionUp:     c.conn.IsConnected(),
	}

	for symbol := range c.caches {
		status.Symbols = append(status.Symbols, symbol)
	}

	for symbol, state := range c.states {
		if state.phase == phaseStreaming {
			status.Streaming = true
		}

		status.SubscriptionCount += len(c.subscriptions[symbol])
	}

	for symbol := range c.scheduledStarts {
		status.ScheduledSymbols = append(status.ScheduledSymbols, symbol)
	}

	sort.Strings(status.Symbols)
	sort.Strings(status.ScheduledSymbols)

	return status
}

func (c *OptionChainStreamingCache) publish(topic eventmodels.EventName, event interface{}) {
	if c.bus == nil {
		return
	}

	c.bus.Publish("OptionChainStreamingCache", topic, event)
}
