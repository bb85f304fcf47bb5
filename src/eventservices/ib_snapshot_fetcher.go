package eventservices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/utils"
)

const (
	ibSecTypeOption        = "OPT"
	ibRightCall            = "C"
	ibRightPut             = "P"
	contractIDCacheTTL     = 24 * time.Hour
	tradingDaysPerYear     = 252
	defaultInfoConcurrency = 8
)

type ibSecdefSearchDTO struct {
	Conid    eventmodels.ContractID `json:"conid"`
	Symbol   string                 `json:"symbol"`
	Sections []struct {
		SecType string `json:"secType"`
		Months  string `json:"months"`
	} `json:"sections"`
}

type ibStrikesDTO struct {
	Call []float64 `json:"call"`
	Put  []float64 `json:"put"`
}

type ibSecdefInfoDTO struct {
	Conid        eventmodels.ContractID `json:"conid"`
	Symbol       string                 `json:"symbol"`
	MaturityDate string                 `json:"maturityDate"`
	Right        string                 `json:"right"`
	Strike       float64                `json:"strike"`
}

// IBSnapshotFetcher builds full option chains from the Client Portal REST API.
type IBSnapshotFetcher struct {
	baseURL               string
	bearerToken           string
	client                *http.Client
	contractIDs           *cache.Cache
	strikeRangeMultiplier float64
	fallbackRangePercent  float64
	maxStrikesPerSide     int
	infoConcurrency       int
	now                   func() time.Time
}

func NewIBSnapshotFetcher(baseURL, bearerToken string, config eventmodels.StreamingCacheConfig) *IBSnapshotFetcher {
	return &IBSnapshotFetcher{
		baseURL:               strings.TrimRight(baseURL, "/"),
		bearerToken:           bearerToken,
		client:                &http.Client{Timeout: 10 * time.Second},
		contractIDs:           cache.New(contractIDCacheTTL, time.Hour),
		strikeRangeMultiplier: config.StrikeRangeMultiplier,
		fallbackRangePercent:  config.FallbackRangePercent,
		maxStrikesPerSide:     config.MaxStrikesPerSide,
		infoConcurrency:       defaultInfoConcurrency,
		now:                   time.Now,
	}
}

func (f *IBSnapshotFetcher) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	fullUrl := fmt.Sprintf("%s%s?%s", f.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
	if err != nil {
		return fmt.Errorf("IBSnapshotFetcher: failed to create request: %w", err)
	}

	req.Header.Add("Accept", "application/json")
	if f.bearerToken != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", f.bearerToken))
	}

	log.Tracef("IBSnapshotFetcher: fetching %s", req.URL.String())

	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("IBSnapshotFetcher: %s: query failed: %w", path, err)
	}

	defer res.Body.Close()

	bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("IBSnapshotFetcher: %s: failed to read response body: %w", path, err)
	}

	if res.StatusCode != http.StatusOK {
		log.Errorf("IBSnapshotFetcher: %s: %s", path, string(bytes))
		return fmt.Errorf("IBSnapshotFetcher: %s: invalid status code: %s", path, res.Status)
	}

	if err := json.Unmarshal(bytes, out); err != nil {
		return fmt.Errorf("IBSnapshotFetcher: %s: failed to decode json: %w", path, err)
	}

	return nil
}

// ResolveContractID looks up the underlying conid for a symbol. Results are
// memoized for a day.
func (f *IBSnapshotFetcher) ResolveContractID(ctx context.Context, symbol string) (eventmodels.ContractID, bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, false, eventmodels.ErrSymbolRequired
	}

	if v, found := f.contractIDs.Get(symbol); found {
		return v.(eventmodels.ContractID), true, nil
	}

	var results []ibSecdefSearchDTO
	if err := f.getJSON(ctx, "/iserver/secdef/search", url.Values{"symbol": {symbol}}, &results); err != nil {
		return 0, false, fmt.Errorf("ResolveContractID: %w", err)
	}

	var match *ibSecdefSearchDTO
	for i := range results {
		if results[i].Conid <= 0 {
			continue
		}

		if strings.EqualFold(results[i].Symbol, symbol) {
			match = &results[i]
			break
		}

		if match == nil {
			match = &results[i]
		}
	}

	if match == nil {
		return 0, false, nil
	}

	f.contractIDs.Set(symbol, match.Conid, cache.DefaultExpiration)

	return match.Conid, true, nil
}

func (f *IBSnapshotFetcher) fetchMarketDataSnapshot(ctx context.Context, ids []eventmodels.ContractID, fields []string) (map[eventmodels.ContractID]*eventmodels.MarketDataTick, error) {
	conids := make([]string, 0, len(ids))
	for _, id := range ids {
		conids = append(conids, id.String())
	}

	query := url.Values{}
	query.Add("conids", strings.Join(conids, ","))
	query.Add("fields", strings.Join(fields, ","))

	var rows []map[string]json.RawMessage
	if err := f.getJSON(ctx, "/iserver/marketdata/snapshot", query, &rows); err != nil {
		return nil, fmt.Errorf("fetchMarketDataSnapshot: %w", err)
	}

	result := make(map[eventmodels.ContractID]*eventmodels.MarketDataTick, len(rows))
	for _, row := range rows {
		tick, err := utils.IBFieldsToTick(row)
		if err != nil {
			log.Warnf("fetchMarketDataSnapshot: skipping row: %v", err)
			continue
		}

		result[tick.ContractID] = tick
	}

	// the underlying implied vol field is keyed differently from the option one
	for _, row := range rows {
		raw, found := row[utils.IBFieldUnderlyingImpliedVol]
		if !found {
			continue
		}

		var id eventmodels.ContractID
		if err := json.Unmarshal(row[utils.IBFieldConid], &id); err != nil {
			continue
		}

		if v, ok, err := utils.ParseIBNumber(raw); err == nil && ok {
			if tick, found := result[id]; found && tick.ImpliedVolatility == nil {
				tick.ImpliedVolatility = eventmodels.Float64Ptr(v)
			}
		}
	}

	return result, nil
}

func (f *IBSnapshotFetcher) fetchStrikes(ctx context.Context, underlying eventmodels.ContractID, month string) (*ibStrikesDTO, error) {
	query := url.Values{}
	query.Add("conid", underlying.String())
	query.Add("sectype", ibSecTypeOption)
	query.Add("month", month)

	var dto ibStrikesDTO
	if err := f.getJSON(ctx, "/iserver/secdef/strikes", query, &dto); err != nil {
		return nil, fmt.Errorf("fetchStrikes: %w", err)
	}

	return &dto, nil
}

// fetchOptionContractID returns the conid of the nearest expiry on or after today.
func (f *IBSnapshotFetcher) fetchOptionContractID(ctx context.Context, underlying eventmodels.ContractID, month string, strike decimal.Decimal, right string, today string) (eventmodels.ContractID, bool, error) {
	query := url.Values{}
	query.Add("conid", underlying.String())
	query.Add("sectype", ibSecTypeOption)
	query.Add("month", month)
	query.Add("strike", strike.String())
	query.Add("right", right)

	var infos []ibSecdefInfoDTO
	if err := f.getJSON(ctx, "/iserver/secdef/info", query, &infos); err != nil {
		return 0, false, fmt.Errorf("fetchOptionContractID: %w", err)
	}

	var best *ibSecdefInfoDTO
	for i := range infos {
		if infos[i].Conid <= 0 || infos[i].MaturityDate < today {
			continue
		}

		if best == nil || infos[i].MaturityDate < best.MaturityDate {
			best = &infos[i]
		}
	}

	if best == nil {
		return 0, false, nil
	}

	return best.Conid, true, nil
}

// SelectStrikes keeps the strikes inside [low, high], at most max of them
// nearest to price, in ascending order.
func SelectStrikes(strikes []float64, price float64, low, high decimal.Decimal, max int) []decimal.Decimal {
	var inRange []decimal.Decimal
	for _, s := range strikes {
		d := decimal.NewFromFloat(s)
		if d.LessThan(low) || d.GreaterThan(high) {
			continue
		}

		inRange = append(inRange, d)
	}

	p := decimal.NewFromFloat(price)
	sort.SliceStable(inRange, func(i, j int) bool {
		return inRange[i].Sub(p).Abs().LessThan(inRange[j].Sub(p).Abs())
	})

	if max > 0 && len(inRange) > max {
		inRange = inRange[:max]
	}

	sort.Slice(inRange, func(i, j int) bool {
		return inRange[i].LessThan(inRange[j])
	})

	return inRange
}

// StrikeRange derives the one-day expected move from an annualized implied
// volatility and widens it by multiplier. Without a volatility it falls back
// to a fixed percentage of price.
func StrikeRange(price float64, impliedVol *float64, multiplier, fallbackPercent float64) (*float64, decimal.Decimal, decimal.Decimal) {
	var expectedMove *float64
	width := price * fallbackPercent / 100

	if impliedVol != nil && *impliedVol > 0 {
		move := price * *impliedVol * math.Sqrt(1.0/tradingDaysPerYear)
		expectedMove = &move
		width = move * multiplier
	}

	low := decimal.NewFromFloat(price - width).Floor()
	high := decimal.NewFromFloat(price + width).Ceil()

	return expectedMove, low, high
}

func optionMonth(t time.Time) string {
	return strings.ToUpper(t.Format("Jan06"))
}

func (f *IBSnapshotFetcher) FetchChain(ctx context.Context, symbol string) (*eventmodels.OptionChainSnapshot, error) {
	tracer := otel.Tracer("IBSnapshotFetcher")
	ctx, span := tracer.Start(ctx, "FetchChain")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	span.SetAttributes(attribute.String("symbol", symbol))

	underlying, found, err := f.ResolveContractID(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("FetchChain: %w", err)
	}

	if !found {
		return nil, fmt.Errorf("FetchChain: %s: %w", symbol, eventmodels.ErrContractNotFound)
	}

	now := f.now()
	snapshot := &eventmodels.OptionChainSnapshot{
		Symbol:               symbol,
		UnderlyingContractID: underlying,
		FetchedAt:            now,
	}

	quotes, err := f.fetchMarketDataSnapshot(ctx, []eventmodels.ContractID{underlying}, utils.IBUnderlyingFields)
	if err != nil {
		return nil, fmt.Errorf("FetchChain: underlying quote: %w", err)
	}

	quote, found := quotes[underlying]
	if found {
		if price, ok := quote.UnderlyingPrice(); ok {
			snapshot.UnderlyingPrice = price
		}
	}

	if snapshot.IsDegraded() {
		log.Warnf("FetchChain: %s: no underlying price available", symbol)
		return snapshot, nil
	}

	if quote.ImpliedVolatility != nil {
		snapshot.VolatilityLevel = eventmodels.Float64Ptr(*quote.ImpliedVolatility)
	}

	snapshot.ExpectedMove, snapshot.StrikeRangeLow, snapshot.StrikeRangeHigh = StrikeRange(snapshot.UnderlyingPrice, snapshot.VolatilityLevel, f.strikeRangeMultiplier, f.fallbackRangePercent)

	exchangeNow := ToExchangeTime(now)
	today := exchangeNow.Format("20060102")
	months := []string{optionMonth(exchangeNow), optionMonth(exchangeNow.AddDate(0, 1, 0))}

	for _, month := range months {
		if err := f.populateStrikes(ctx, snapshot, month, today); err != nil {
			return nil, fmt.Errorf("FetchChain: %s %s: %w", symbol, month, err)
		}

		if snapshot.StrikeCount() > 0 {
			break
		}
	}

	if err := f.seedQuotes(ctx, snapshot); err != nil {
		log.Warnf("FetchChain: %s: failed to seed option quotes: %v", symbol, err)
	}

	span.SetAttributes(attribute.Int("strikes", snapshot.StrikeCount()))

	return snapshot, nil
}

func (f *IBSnapshotFetcher) populateStrikes(ctx context.Context, snapshot *eventmodels.OptionChainSnapshot, month, today string) error {
	strikes, err := f.fetchStrikes(ctx, snapshot.UnderlyingContractID, month)
	if err != nil {
		return err
	}

	puts := SelectStrikes(strikes.Put, snapshot.UnderlyingPrice, snapshot.StrikeRangeLow, snapshot.StrikeRangeHigh, f.maxStrikesPerSide)
	calls := SelectStrikes(strikes.Call, snapshot.UnderlyingPrice, snapshot.StrikeRangeLow, snapshot.StrikeRangeHigh, f.maxStrikesPerSide)

	putEntries := make([]eventmodels.StrikeEntry, len(puts))
	callEntries := make([]eventmodels.StrikeEntry, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.infoConcurrency)

	resolve := func(entries []eventmodels.StrikeEntry, strikes []decimal.Decimal, right string) {
		for i, strike := range strikes {
			i, strike := i, strike
			g.Go(func() error {
				id, found, err := f.fetchOptionContractID(gctx, snapshot.UnderlyingContractID, month, strike, right, today)
				if err != nil {
					return err
				}

				if !found {
					log.Debugf("populateStrikes: %s %s%s: no expiry on or after %s", snapshot.Symbol, strike, right, today)
					return nil
				}

				entries[i] = eventmodels.StrikeEntry{Strike: strike, ContractID: id}
				return nil
			})
		}
	}

	resolve(putEntries, puts, ibRightPut)
	resolve(callEntries, calls, ibRightCall)

	if err := g.Wait(); err != nil {
		return err
	}

	snapshot.Puts = compactStrikeEntries(putEntries)
	snapshot.Calls = compactStrikeEntries(callEntries)

	return nil
}

func compactStrikeEntries(entries []eventmodels.StrikeEntry) []eventmodels.StrikeEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.ContractID > 0 {
			out = append(out, e)
		}
	}

	return out
}

func (f *IBSnapshotFetcher) seedQuotes(ctx context.Context, snapshot *eventmodels.OptionChainSnapshot) error {
	if snapshot.StrikeCount() == 0 {
		return nil
	}

	ids := make([]eventmodels.ContractID, 0, snapshot.StrikeCount())
	for _, e := range snapshot.Puts {
		ids = append(ids, e.ContractID)
	}

	for _, e := range snapshot.Calls {
		ids = append(ids, e.ContractID)
	}

	quotes, err := f.fetchMarketDataSnapshot(ctx, ids, utils.IBOptionFields)
	if err != nil {
		return err
	}

	seed := func(entries []eventmodels.StrikeEntry) {
		for i := range entries {
			q, found := quotes[entries[i].ContractID]
			if !found {
				continue
			}

			entries[i].Bid = q.Bid
			entries[i].Ask = q.Ask
			entries[i].Last = q.Last
			entries[i].Delta = q.Delta
			entries[i].Gamma = q.Gamma
			entries[i].Theta = q.Theta
			entries[i].Vega = q.Vega
			entries[i].ImpliedVolatility = q.ImpliedVolatility
			entries[i].OpenInterest = q.OpenInterest
		}
	}

	seed(snapshot.Puts)
	seed(snapshot.Calls)

	return nil
}
