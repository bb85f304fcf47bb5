package eventmodels

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StrikeEntry is one strike returned by a full-chain fetch. Quote and greek
// fields are optional seeds; streaming ticks take over once subscribed.
type StrikeEntry struct {
	Strike            decimal.Decimal
	ContractID        ContractID
	Bid               *float64
	Ask               *float64
	Last              *float64
	Delta             *float64
	Gamma             *float64
	Theta             *float64
	Vega              *float64
	ImpliedVolatility *float64
	OpenInterest      *int64
}

type OptionChainSnapshot struct {
	Symbol               string
	UnderlyingPrice      float64
	UnderlyingContractID ContractID
	VolatilityLevel      *float64
	ExpectedMove         *float64
	StrikeRangeLow       decimal.Decimal
	StrikeRangeHigh      decimal.Decimal
	Puts                 []StrikeEntry
	Calls                []StrikeEntry
	FetchedAt            time.Time
}

// IsDegraded reports a snapshot taken while the market is closed or the feed
// is unavailable.
func (s *OptionChainSnapshot) IsDegraded() bool {
	return s.UnderlyingPrice <= 0
}

func (s *OptionChainSnapshot) StrikeCount() int {
	return len(s.Puts) + len(s.Calls)
}

func (s *OptionChainSnapshot) Validate() error {
	seen := make(map[ContractID]struct{}, s.StrikeCount()+1)
	if s.UnderlyingContractID != 0 {
		seen[s.UnderlyingContractID] = struct{}{}
	}

	check := func(side OptionType, entries []StrikeEntry) error {
		for _, e := range entries {
			if e.ContractID <= 0 {
				return fmt.Errorf("OptionChainSnapshot: %s %s: missing contract id: %w", side, e.Strike, ErrSnapshotMalformed)
			}

			if _, found := seen[e.ContractID]; found {
				return fmt.Errorf("OptionChainSnapshot: %s %s: duplicate contract id %v: %w", side, e.Strike, e.ContractID, ErrSnapshotMalformed)
			}

			seen[e.ContractID] = struct{}{}
		}

		return nil
	}

	if err := check(OptionTypePut, s.Puts); err != nil {
		return err
	}

	return check(OptionTypeCall, s.Calls)
}
