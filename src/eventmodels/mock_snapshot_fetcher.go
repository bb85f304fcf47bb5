package eventmodels

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type MockSnapshotFetcher struct {
	mu         sync.Mutex
	snapshots  map[string]*OptionChainSnapshot
	errs       map[string]error
	contracts  map[string]ContractID
	FetchCalls int

	// Gate, when set, blocks FetchChain until a value is received.
	Gate chan struct{}
}

func (m *MockSnapshotFetcher) SetSnapshot(symbol string, snapshot *OptionChainSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[strings.ToUpper(symbol)] = snapshot
	delete(m.errs, strings.ToUpper(symbol))
}

func (m *MockSnapshotFetcher) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errs[strings.ToUpper(symbol)] = err
}

func (m *MockSnapshotFetcher) SetContractID(symbol string, id ContractID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contracts[strings.ToUpper(symbol)] = id
}

func (m *MockSnapshotFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.FetchCalls
}

func (m *MockSnapshotFetcher) FetchChain(ctx context.Context, symbol string) (*OptionChainSnapshot, error) {
	m.mu.Lock()
	m.FetchCalls++
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToUpper(symbol)
	if err, found := m.errs[key]; found {
		return nil, err
	}

	snapshot, found := m.snapshots[key]
	if !found {
		return nil, fmt.Errorf("MockSnapshotFetcher: no snapshot for %s", symbol)
	}

	cp := *snapshot
	cp.Puts = append([]StrikeEntry(nil), snapshot.Puts...)
	cp.Calls = append([]StrikeEntry(nil), snapshot.Calls...)

	return &cp, nil
}

func (m *MockSnapshotFetcher) ResolveContractID(ctx context.Context, symbol string) (ContractID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, found := m.contracts[strings.ToUpper(symbol)]
	return id, found, nil
}

func NewMockSnapshotFetcher() *MockSnapshotFetcher {
	return &MockSnapshotFetcher{
		snapshots: make(map[string]*OptionChainSnapshot),
		errs:      make(map[string]error),
		contracts: make(map[string]ContractID),
	}
}
