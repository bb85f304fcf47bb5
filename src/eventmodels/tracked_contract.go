package eventmodels

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackedContract is the latest known state of one streamed option contract.
// ContractID, Strike and Side are fixed once the contract enters a SymbolCache.
type TrackedContract struct {
	Strike            decimal.Decimal `json:"strike"`
	Side              OptionType      `json:"side"`
	ContractID        ContractID      `json:"contract_id"`
	Bid               *float64        `json:"bid,omitempty"`
	Ask               *float64        `json:"ask,omitempty"`
	Last              *float64        `json:"last,omitempty"`
	Delta             *float64        `json:"delta,omitempty"`
	Gamma             *float64        `json:"gamma,omitempty"`
	Theta             *float64        `json:"theta,omitempty"`
	Vega              *float64        `json:"vega,omitempty"`
	ImpliedVolatility *float64        `json:"iv,omitempty"`
	OpenInterest      *int64          `json:"open_interest,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func NewTrackedContract(side OptionType, entry StrikeEntry, now time.Time) *TrackedContract {
	return &TrackedContract{
		Strike:            entry.Strike,
		Side:              side,
		ContractID:        entry.ContractID,
		Bid:               copyFloat64(entry.Bid),
		Ask:               copyFloat64(entry.Ask),
		Last:              copyFloat64(entry.Last),
		Delta:             copyFloat64(entry.Delta),
		Gamma:             copyFloat64(entry.Gamma),
		Theta:             copyFloat64(entry.Theta),
		Vega:              copyFloat64(entry.Vega),
		ImpliedVolatility: copyFloat64(entry.ImpliedVolatility),
		OpenInterest:      copyInt64(entry.OpenInterest),
		UpdatedAt:         now,
	}
}

// ApplyTick merges the fields carried by tick into the contract and returns
// the names of the fields it wrote. Fields absent from the tick keep their value.
func (c *TrackedContract) ApplyTick(tick *MarketDataTick) []string {
	var changed []string

	merge := func(name string, dst **float64, src *float64) {
		if src == nil {
			return
		}

		*dst = copyFloat64(src)
		changed = append(changed, name)
	}

	merge("bid", &c.Bid, tick.Bid)
	merge("ask", &c.Ask, tick.Ask)
	merge("last", &c.Last, tick.Last)
	merge("delta", &c.Delta, tick.Delta)
	merge("gamma", &c.Gamma, tick.Gamma)
	merge("theta", &c.Theta, tick.Theta)
	merge("vega", &c.Vega, tick.Vega)
	merge("iv", &c.ImpliedVolatility, tick.ImpliedVolatility)

	if tick.OpenInterest != nil {
		c.OpenInterest = copyInt64(tick.OpenInterest)
		changed = append(changed, "open_interest")
	}

	if !tick.Timestamp.IsZero() {
		c.UpdatedAt = tick.Timestamp
	}

	return changed
}

func (c *TrackedContract) Copy() TrackedContract {
	return TrackedContract{
		Strike:            c.Strike,
		Side:              c.Side,
		ContractID:        c.ContractID,
		Bid:               copyFloat64(c.Bid),
		Ask:               copyFloat64(c.Ask),
		Last:              copyFloat64(c.Last),
		Delta:             copyFloat64(c.Delta),
		Gamma:             copyFloat64(c.Gamma),
		Theta:             copyFloat64(c.Theta),
		Vega:              copyFloat64(c.Vega),
		ImpliedVolatility: copyFloat64(c.ImpliedVolatility),
		OpenInterest:      copyInt64(c.OpenInterest),
		UpdatedAt:         c.UpdatedAt,
	}
}
