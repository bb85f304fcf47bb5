package eventmodels

import "time"

// MarketDataTick is a field-sparse update for one contract. A nil field was not
// carried by the message and must not overwrite cached state.
type MarketDataTick struct {
	ContractID        ContractID `json:"contract_id"`
	Last              *float64   `json:"last,omitempty"`
	Bid               *float64   `json:"bid,omitempty"`
	Ask               *float64   `json:"ask,omitempty"`
	Delta             *float64   `json:"delta,omitempty"`
	Gamma             *float64   `json:"gamma,omitempty"`
	Theta             *float64   `json:"theta,omitempty"`
	Vega              *float64   `json:"vega,omitempty"`
	ImpliedVolatility *float64   `json:"iv,omitempty"`
	OpenInterest      *int64     `json:"open_interest,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

func (t *MarketDataTick) IsEmpty() bool {
	return t.Last == nil && t.Bid == nil && t.Ask == nil &&
		t.Delta == nil && t.Gamma == nil && t.Theta == nil && t.Vega == nil &&
		t.ImpliedVolatility == nil && t.OpenInterest == nil
}

// UnderlyingPrice prefers the last trade, then the bid/ask midpoint.
func (t *MarketDataTick) UnderlyingPrice() (float64, bool) {
	if t.Last != nil && *t.Last > 0 {
		return *t.Last, true
	}

	if t.Bid != nil && t.Ask != nil && *t.Bid > 0 && *t.Ask > 0 {
		return (*t.Bid + *t.Ask) / 2, true
	}

	return 0, false
}
