package optionsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/eventproducers"
)

type IStreamingCache interface {
	StartStreaming(ctx context.Context, symbol string) error
	StopStreaming(symbol string)
	StopAll()
	GetOptionChain(symbol string) (*eventmodels.CachedOptionChain, bool)
	ScheduleMarketOpenStart(symbol string) (time.Time, error)
	GetStatus() eventmodels.StreamingStatus
}

type lifecycleResponse struct {
	Symbol    string     `json:"symbol,omitempty"`
	Action    string     `json:"action"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	Streaming bool       `json:"streaming"`
}

type Handler struct {
	cache IStreamingCache
}

func NewHandler(cache IStreamingCache) *Handler {
	return &Handler{cache: cache}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.cache.GetStatus()
	if err := eventproducers.SetResponse(&status, w); err != nil {
		log.Errorf("handleStatus: %v", err)
	}
}

func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	chain, found := h.cache.GetOptionChain(symbol)
	if !found {
		eventproducers.SetErrorResponse("not_found", http.StatusNotFound, fmt.Errorf("no fresh option chain for %s", symbol), w)
		return
	}

	if err := eventproducers.SetResponse(chain, w); err != nil {
		log.Errorf("handleChain: %v", err)
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if err := h.cache.StartStreaming(r.Context(), symbol); err != nil {
		statusCode := http.StatusInternalServerError
		errType := "bootstrap"
		if errors.Is(err, eventmodels.ErrSymbolRequired) {
			statusCode = http.StatusBadRequest
			errType = "validation"
		} else if errors.Is(err, eventmodels.ErrContractNotFound) {
			statusCode = http.StatusNotFound
			errType = "not_found"
		}

		eventproducers.SetErrorResponse(errType, statusCode, err, w)
		return
	}

	resp := lifecycleResponse{Symbol: symbol, Action: "start", Streaming: h.cache.GetStatus().Streaming}
	if err := eventproducers.SetResponse(&resp, w); err != nil {
		log.Errorf("handleStart: %v", err)
	}
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	h.cache.StopStreaming(symbol)

	resp := lifecycleResponse{Symbol: symbol, Action: "stop", Streaming: h.cache.GetStatus().Streaming}
	if err := eventproducers.SetResponse(&resp, w); err != nil {
		log.Errorf("handleStop: %v", err)
	}
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	at, err := h.cache.ScheduleMarketOpenStart(symbol)
	if err != nil {
		eventproducers.SetErrorResponse("validation", http.StatusBadRequest, err, w)
		return
	}

	resp := lifecycleResponse{Symbol: symbol, Action: "schedule", StartsAt: &at}
	if err := eventproducers.SetResponseWithStatus(&resp, http.StatusAccepted, w); err != nil {
		log.Errorf("handleSchedule: %v", err)
	}
}

func (h *Handler) handleStopAll(w http.ResponseWriter, r *http.Request) {
	h.cache.StopAll()

	resp := lifecycleResponse{Action: "stop_all"}
	if err := eventproducers.SetResponse(&resp, w); err != nil {
		log.Errorf("handleStopAll: %v", err)
	}
}

func SetupHandler(router *mux.Router, cache IStreamingCache) {
	h := NewHandler(cache)

	router.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/stop", h.handleStopAll).Methods(http.MethodPost)
	router.HandleFunc("/{symbol}/chain", h.handleChain).Methods(http.MethodGet)
	router.HandleFunc("/{symbol}/start", h.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/{symbol}/stop", h.handleStop).Methods(http.MethodPost)
	router.HandleFunc("/{symbol}/schedule", h.handleSchedule).Methods(http.MethodPost)
}
