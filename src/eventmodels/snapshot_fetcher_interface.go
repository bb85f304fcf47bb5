package eventmodels

import "context"

type ISnapshotFetcher interface {
	FetchChain(ctx context.Context, symbol string) (*OptionChainSnapshot, error)
	ResolveContractID(ctx context.Context, symbol string) (ContractID, bool, error)
}
