package run

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
)

func TestRenderMarketOpens(t *testing.T) {
	now := time.Date(2026, time.October, 30, 21, 0, 0, 0, time.UTC) // Friday after close

	out := RenderMarketOpens(now, eventmodels.DefaultMarketSession(), 2)

	assert.Contains(t, out, "Mon 2026-11-02")
	assert.Contains(t, out, "09:30 EST")
	assert.Contains(t, out, "14:30")
	assert.Contains(t, out, "-5h")
	assert.Contains(t, out, "Tue 2026-11-03")
	assert.NotContains(t, out, "2026-10-31")
}

func TestRenderChain(t *testing.T) {
	chain := &eventmodels.CachedOptionChain{
		Symbol:          "SPY",
		UnderlyingPrice: 1450.5,
		DataSource:      eventmodels.DataSourceStreaming,
		Puts: []eventmodels.TrackedContract{
			{Strike: decimal.NewFromInt(1445), Side: eventmodels.OptionTypePut, ContractID: 1, Bid: eventmodels.Float64Ptr(1.1)},
		},
		Calls: []eventmodels.TrackedContract{
			{Strike: decimal.NewFromInt(1455), Side: eventmodels.OptionTypeCall, ContractID: 2, Delta: eventmodels.Float64Ptr(0.4)},
		},
	}

	out := RenderChain(chain)

	assert.Contains(t, out, "SPY $1,450.50")
	assert.Contains(t, out, "1445")
	assert.Contains(t, out, "1455")
	assert.Contains(t, out, "1.10")
	assert.Contains(t, out, "0.400")
}

func TestFetchChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streaming/SPY/chain" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		json.NewEncoder(w).Encode(eventmodels.CachedOptionChain{Symbol: "SPY", UnderlyingPrice: 450})
	}))
	defer server.Close()

	chain, err := FetchChain(server.URL, "spy")
	require.NoError(t, err)
	assert.Equal(t, 450.0, chain.UnderlyingPrice)

	_, err = FetchChain(server.URL, "QQQ")
	assert.ErrorIs(t, err, eventmodels.ErrContractNotFound)
}
