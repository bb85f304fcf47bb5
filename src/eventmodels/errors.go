package eventmodels

import "errors"

var (
	ErrBootstrapFailed   = errors.New("bootstrap failed")
	ErrSymbolRequired    = errors.New("symbol is required")
	ErrContractNotFound  = errors.New("contract not found")
	ErrNotConnected      = errors.New("streaming connection is not connected")
	ErrSnapshotMalformed = errors.New("snapshot is malformed")
)
