package eventmodels

import (
	"context"

	"github.com/shopspring/decimal"
)

type MarketDataListener func(tick *MarketDataTick)

type SubscriptionMetadata struct {
	Symbol       string
	Side         OptionType
	Strike       decimal.Decimal
	IsUnderlying bool
}

// IStreamingConnection is a persistent push feed. Implementations reconnect on
// their own; Connect is a no-op once connected.
type IStreamingConnection interface {
	Connect(ctx context.Context) error
	Subscribe(id ContractID, meta SubscriptionMetadata) error
	Unsubscribe(id ContractID) error
	OnUpdate(listener MarketDataListener) (unsubscribe func())
	IsConnected() bool
}
