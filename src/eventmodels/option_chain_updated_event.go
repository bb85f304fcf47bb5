package eventmodels

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionChainUpdatedEvent struct {
	Symbol        string          `json:"symbol"`
	ContractID    ContractID      `json:"contract_id"`
	IsUnderlying  bool            `json:"is_underlying"`
	Side          OptionType      `json:"side,omitempty"`
	Strike        decimal.Decimal `json:"strike"`
	ChangedFields []string        `json:"changed_fields"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewOptionChainUpdatedEvent(symbol string, tick *MarketDataTick, result TickResult) *OptionChainUpdatedEvent {
	ev := &OptionChainUpdatedEvent{
		Symbol:        symbol,
		ContractID:    tick.ContractID,
		IsUnderlying:  result.IsUnderlying,
		ChangedFields: result.ChangedFields,
		Timestamp:     tick.Timestamp,
	}

	if result.Contract != nil {
		ev.Side = result.Contract.Side
		ev.Strike = result.Contract.Strike
	}

	return ev
}

type StreamingLifecycleEvent struct {
	Symbol     string     `json:"symbol"`
	DataSource DataSource `json:"data_source,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
