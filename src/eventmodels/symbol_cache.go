package eventmodels

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type ContractRef struct {
	Side   OptionType
	Strike decimal.Decimal
}

func (r ContractRef) key() string {
	return fmt.Sprintf("%s:%s", r.Side, r.Strike.String())
}

// TickResult describes what a tick changed inside a SymbolCache.
type TickResult struct {
	IsUnderlying  bool
	Contract      *TrackedContract
	ChangedFields []string
}

// SymbolCache holds the latest state of one underlying and its tracked strikes.
// It is not safe for concurrent use; the owner serializes access.
type SymbolCache struct {
	Symbol               string
	UnderlyingPrice      float64
	UnderlyingContractID ContractID
	VolatilityLevel      *float64
	ExpectedMove         *float64
	StrikeRangeLow       decimal.Decimal
	StrikeRangeHigh      decimal.Decimal
	DataSource           DataSource
	LastRefresh          time.Time
	LastUpdate           time.Time

	puts      []*TrackedContract
	calls     []*TrackedContract
	contracts map[string]*TrackedContract
	index     map[ContractID]ContractRef
}

func NewSymbolCache(snapshot *OptionChainSnapshot, source DataSource, now time.Time) (*SymbolCache, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("NewSymbolCache: %w", err)
	}

	c := &SymbolCache{
		Symbol:               snapshot.Symbol,
		UnderlyingPrice:      snapshot.UnderlyingPrice,
		UnderlyingContractID: snapshot.UnderlyingContractID,
		VolatilityLevel:      copyFloat64(snapshot.VolatilityLevel),
		ExpectedMove:         copyFloat64(snapshot.ExpectedMove),
		StrikeRangeLow:       snapshot.StrikeRangeLow,
		StrikeRangeHigh:      snapshot.StrikeRangeHigh,
		DataSource:           source,
		LastRefresh:          now,
		LastUpdate:           now,
		contracts:            make(map[string]*TrackedContract),
		index:                make(map[ContractID]ContractRef),
	}

	for _, e := range snapshot.Puts {
		if _, err := c.AddContract(OptionTypePut, e, now); err != nil {
			return nil, fmt.Errorf("NewSymbolCache: %w", err)
		}
	}

	for _, e := range snapshot.Calls {
		if _, err := c.AddContract(OptionTypeCall, e, now); err != nil {
			return nil, fmt.Errorf("NewSymbolCache: %w", err)
		}
	}

	return c, nil
}

// AddContract inserts a strike in strike order. It returns nil without error
// when the side/strike is already tracked.
func (c *SymbolCache) AddContract(side OptionType, entry StrikeEntry, now time.Time) (*TrackedContract, error) {
	if err := side.Validate(); err != nil {
		return nil, err
	}

	ref := ContractRef{Side: side, Strike: entry.Strike}
	if _, found := c.contracts[ref.key()]; found {
		return nil, nil
	}

	if _, found := c.index[entry.ContractID]; found || entry.ContractID == c.UnderlyingContractID {
		return nil, fmt.Errorf("SymbolCache.AddContract: contract id %v already tracked: %w", entry.ContractID, ErrSnapshotMalformed)
	}

	contract := NewTrackedContract(side, entry, now)

	list := c.sideList(side)
	pos := sort.Search(len(*list), func(i int) bool {
		return (*list)[i].Strike.GreaterThan(entry.Strike)
	})

	*list = append(*list, nil)
	copy((*list)[pos+1:], (*list)[pos:])
	(*list)[pos] = contract

	c.contracts[ref.key()] = contract
	c.index[entry.ContractID] = ref

	return contract, nil
}

func (c *SymbolCache) sideList(side OptionType) *[]*TrackedContract {
	if side == OptionTypePut {
		return &c.puts
	}

	return &c.calls
}

// Lookup resolves a contract id through the reverse index.
func (c *SymbolCache) Lookup(id ContractID) (*TrackedContract, bool) {
	ref, found := c.index[id]
	if !found {
		return nil, false
	}

	contract, found := c.contracts[ref.key()]
	return contract, found
}

func (c *SymbolCache) Owns(id ContractID) bool {
	if id == 0 {
		return false
	}

	if id == c.UnderlyingContractID {
		return true
	}

	_, found := c.index[id]
	return found
}

// ApplyTick routes a tick to the underlying or to the matching contract.
// The second return value is false when the tick belongs to neither.
func (c *SymbolCache) ApplyTick(tick *MarketDataTick, now time.Time) (TickResult, bool) {
	if tick.ContractID != 0 && tick.ContractID == c.UnderlyingContractID {
		result := TickResult{IsUnderlying: true}
		if price, ok := tick.UnderlyingPrice(); ok {
			c.UnderlyingPrice = price
			result.ChangedFields = append(result.ChangedFields, "underlying_price")
		}

		c.LastUpdate = now
		return result, true
	}

	contract, found := c.Lookup(tick.ContractID)
	if !found {
		return TickResult{}, false
	}

	changed := contract.ApplyTick(tick)
	c.LastUpdate = now

	return TickResult{Contract: contract, ChangedFields: changed}, true
}

// checkRefresh rejects a refresh snapshot whose new strikes would collide with
// tracked contract ids or with each other. Nothing is mutated.
func (c *SymbolCache) checkRefresh(snapshot *OptionChainSnapshot) error {
	pending := make(map[string]struct{})
	ids := make(map[ContractID]struct{})

	check := func(side OptionType, entries []StrikeEntry) error {
		for _, e := range entries {
			if e.ContractID <= 0 {
				continue
			}

			ref := ContractRef{Side: side, Strike: e.Strike}
			if _, found := c.contracts[ref.key()]; found {
				continue
			}

			if _, found := pending[ref.key()]; found {
				continue
			}

			_, tracked := c.index[e.ContractID]
			_, seen := ids[e.ContractID]
			if tracked || seen || e.ContractID == c.UnderlyingContractID {
				return fmt.Errorf("%s %s: contract id %v already tracked: %w", side, e.Strike, e.ContractID, ErrSnapshotMalformed)
			}

			pending[ref.key()] = struct{}{}
			ids[e.ContractID] = struct{}{}
		}

		return nil
	}

	if err := check(OptionTypePut, snapshot.Puts); err != nil {
		return err
	}

	return check(OptionTypeCall, snapshot.Calls)
}

// MergeRefresh overwrites underlying-level fields from a newer snapshot and
// adds strikes that entered the tracked range. Existing contracts keep their
// streamed state.
func (c *SymbolCache) MergeRefresh(snapshot *OptionChainSnapshot, now time.Time) ([]*TrackedContract, error) {
	if err := c.checkRefresh(snapshot); err != nil {
		return nil, fmt.Errorf("SymbolCache.MergeRefresh: %w", err)
	}

	if snapshot.UnderlyingPrice > 0 {
		c.UnderlyingPrice = snapshot.UnderlyingPrice
	}

	if snapshot.VolatilityLevel != nil {
		c.VolatilityLevel = copyFloat64(snapshot.VolatilityLevel)
	}

	if snapshot.ExpectedMove != nil {
		c.ExpectedMove = copyFloat64(snapshot.ExpectedMove)
	}

	if !snapshot.StrikeRangeLow.IsZero() || !snapshot.StrikeRangeHigh.IsZero() {
		c.StrikeRangeLow = snapshot.StrikeRangeLow
		c.StrikeRangeHigh = snapshot.StrikeRangeHigh
	}

	var added []*TrackedContract
	add := func(side OptionType, entries []StrikeEntry) error {
		for _, e := range entries {
			if e.ContractID <= 0 {
				continue
			}

			if existing, found := c.Lookup(e.ContractID); found && existing.Side == side && existing.Strike.Equal(e.Strike) {
				continue
			}

			contract, err := c.AddContract(side, e, now)
			if err != nil {
				return err
			}

			if contract != nil {
				added = append(added, contract)
			}
		}

		return nil
	}

	if err := add(OptionTypePut, snapshot.Puts); err != nil {
		return added, fmt.Errorf("SymbolCache.MergeRefresh: %w", err)
	}

	if err := add(OptionTypeCall, snapshot.Calls); err != nil {
		return added, fmt.Errorf("SymbolCache.MergeRefresh: %w", err)
	}

	c.LastRefresh = now

	return added, nil
}

// ContractIDs lists the underlying id (when known) followed by every tracked contract id.
func (c *SymbolCache) ContractIDs() []ContractID {
	ids := make([]ContractID, 0, len(c.index)+1)
	if c.UnderlyingContractID != 0 {
		ids = append(ids, c.UnderlyingContractID)
	}

	for _, list := range [][]*TrackedContract{c.puts, c.calls} {
		for _, contract := range list {
			ids = append(ids, contract.ContractID)
		}
	}

	return ids
}

func (c *SymbolCache) ContractCount() int {
	return len(c.puts) + len(c.calls)
}

func (c *SymbolCache) Age(now time.Time) time.Duration {
	return now.Sub(c.LastUpdate)
}

// Validate checks that the reverse index and the per-side collections agree.
func (c *SymbolCache) Validate() error {
	if len(c.index) != c.ContractCount() {
		return fmt.Errorf("SymbolCache.Validate: index has %d entries, collections have %d", len(c.index), c.ContractCount())
	}

	for id, ref := range c.index {
		contract, found := c.contracts[ref.key()]
		if !found {
			return fmt.Errorf("SymbolCache.Validate: contract id %v resolves to missing %s", id, ref.key())
		}

		if contract.ContractID != id {
			return fmt.Errorf("SymbolCache.Validate: contract id %v resolves to contract %v", id, contract.ContractID)
		}
	}

	return nil
}

// Chain returns a deep copy safe to hand to consumers.
func (c *SymbolCache) Chain() *CachedOptionChain {
	chain := &CachedOptionChain{
		Symbol:               c.Symbol,
		UnderlyingPrice:      c.UnderlyingPrice,
		UnderlyingContractID: c.UnderlyingContractID,
		VolatilityLevel:      copyFloat64(c.VolatilityLevel),
		ExpectedMove:         copyFloat64(c.ExpectedMove),
		StrikeRangeLow:       c.StrikeRangeLow,
		StrikeRangeHigh:      c.StrikeRangeHigh,
		DataSource:           c.DataSource,
		LastRefresh:          c.LastRefresh,
		LastUpdate:           c.LastUpdate,
		Puts:                 make([]TrackedContract, 0, len(c.puts)),
		Calls:                make([]TrackedContract, 0, len(c.calls)),
	}

	for _, p := range c.puts {
		chain.Puts = append(chain.Puts, p.Copy())
	}

	for _, cl := range c.calls {
		chain.Calls = append(chain.Calls, cl.Copy())
	}

	return chain
}
