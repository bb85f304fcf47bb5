package optionsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventproducers"
)

type fakeStreamingCache struct {
	started    []string
	stopped    []string
	stopAll    int
	startErr   error
	chains     map[string]*eventmodels.CachedOptionChain
	scheduleAt time.Time
}

func (f *fakeStreamingCache) StartStreaming(ctx context.Context, symbol string) error {
	if f.startErr != nil {
		return f.startErr
	}

	f.started = append(f.started, symbol)
	return nil
}

func (f *fakeStreamingCache) StopStreaming(symbol string) {
	f.stopped = append(f.stopped, symbol)
}

func (f *fakeStreamingCache) StopAll() {
	f.stopAll++
}

func (f *fakeStreamingCache) GetOptionChain(symbol string) (*eventmodels.CachedOptionChain, bool) {
	chain, found := f.chains[symbol]
	return chain, found
}

func (f *fakeStreamingCache) ScheduleMarketOpenStart(symbol string) (time.Time, error) {
	if strings.TrimSpace(symbol) == "" {
		return time.Time{}, eventmodels.ErrSymbolRequired
	}

	return f.scheduleAt, nil
}

func (f *fakeStreamingCache) GetStatus() eventmodels.StreamingStatus {
	return eventmodels.StreamingStatus{
		Streaming:         len(f.started) > 0,
		Symbols:           f.started,
		SubscriptionCount: 3 * len(f.started),
		ConnectionUp:      true,
	}
}

func newTestRouter(cache IStreamingCache) *mux.Router {
	router := mux.NewRouter()
	SetupHandler(router.PathPrefix("/streaming").Subrouter(), cache)
	return router
}

func serve(router *mux.Router, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		cache := &fakeStreamingCache{started: []string{"SPY"}}
		rec := serve(newTestRouter(cache), http.MethodGet, "/streaming/status")

		require.Equal(t, http.StatusOK, rec.Code)

		var status eventmodels.StreamingStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.True(t, status.Streaming)
		assert.Equal(t, []string{"SPY"}, status.Symbols)
		assert.Equal(t, 3, status.SubscriptionCount)
	})

	t.Run("chain found", func(t *testing.T) {
		cache := &fakeStreamingCache{chains: map[string]*eventmodels.CachedOptionChain{
			"SPY": {Symbol: "SPY", UnderlyingPrice: 450},
		}}
		rec := serve(newTestRouter(cache), http.MethodGet, "/streaming/SPY/chain")

		require.Equal(t, http.StatusOK, rec.Code)

		var chain eventmodels.CachedOptionChain
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chain))
		assert.Equal(t, 450.0, chain.UnderlyingPrice)
	})

	t.Run("absent or stale chain is a 404", func(t *testing.T) {
		cache := &fakeStreamingCache{}
		rec := serve(newTestRouter(cache), http.MethodGet, "/streaming/SPY/chain")

		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp eventproducers.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "not_found", resp.Type)
	})

	t.Run("start", func(t *testing.T) {
		cache := &fakeStreamingCache{}
		rec := serve(newTestRouter(cache), http.MethodPost, "/streaming/SPY/start")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"SPY"}, cache.started)
	})

	t.Run("bootstrap failure is a 500", func(t *testing.T) {
		cache := &fakeStreamingCache{startErr: fmt.Errorf("StartStreaming SPY: %w: %w", eventmodels.ErrBootstrapFailed, errors.New("timeout"))}
		rec := serve(newTestRouter(cache), http.MethodPost, "/streaming/SPY/start")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("unknown symbol is a 404", func(t *testing.T) {
		cache := &fakeStreamingCache{startErr: fmt.Errorf("StartStreaming XYZ: %w: %w", eventmodels.ErrBootstrapFailed, eventmodels.ErrContractNotFound)}
		rec := serve(newTestRouter(cache), http.MethodPost, "/streaming/XYZ/start")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("stop", func(t *testing.T) {
		cache := &fakeStreamingCache{}
		rec := serve(newTestRouter(cache), http.MethodPost, "/streaming/SPY/stop")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"SPY"}, cache.stopped)
	})

	t.Run("stop all", func(t *testing.T) {
		cache := &fakeStreamingCache{}
		rec := serve(newTestRouter(cache), http.MethodPost, "/streaming/stop")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, cache.stopAll)
	})

	t.Run("schedule", func(t *testing.T) {
		at := time.Date(2026, time.October, 19, 13, 30, 0, 0, time.UTC)
		cache := &fakeStreamingCache{scheduleAt: at}
		rec := serve(newTestRouter(cache), http.MethodPost, "/streaming/SPY/schedule")

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp lifecycleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.StartsAt)
		assert.True(t, at.Equal(*resp.StartsAt))
	})

	t.Run("wrong method", func(t *testing.T) {
		cache := &fakeStreamingCache{}
		rec := serve(newTestRouter(cache), http.MethodGet, "/streaming/SPY/start")

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Empty(t, cache.started)
	})
}
