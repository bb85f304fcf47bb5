package eventmodels

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedOptionChain is a point-in-time copy of a SymbolCache handed to readers.
type CachedOptionChain struct {
	Symbol               string            `json:"symbol"`
	UnderlyingPrice      float64           `json:"underlying_price"`
	UnderlyingContractID ContractID        `json:"underlying_contract_id"`
	VolatilityLevel      *float64          `json:"volatility_level,omitempty"`
	ExpectedMove         *float64          `json:"expected_move,omitempty"`
	StrikeRangeLow       decimal.Decimal   `json:"strike_range_low"`
	StrikeRangeHigh      decimal.Decimal   `json:"strike_range_high"`
	Puts                 []TrackedContract `json:"puts"`
	Calls                []TrackedContract `json:"calls"`
	DataSource           DataSource        `json:"data_source"`
	LastRefresh          time.Time         `json:"last_refresh"`
	LastUpdate           time.Time         `json:"last_update"`
}

func (c *CachedOptionChain) ContractCount() int {
	return len(c.Puts) + len(c.Calls)
}
