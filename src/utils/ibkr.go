package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
)

// Client Portal market data field codes.
const (
	IBFieldLast                  = "31"
	IBFieldBid                   = "84"
	IBFieldAsk                   = "86"
	IBFieldUnderlyingImpliedVol  = "7283"
	IBFieldDelta                 = "7308"
	IBFieldGamma                 = "7309"
	IBFieldTheta                 = "7310"
	IBFieldVega                  = "7311"
	IBFieldImpliedVol            = "7633"
	IBFieldOptionOpenInterest    = "7638"
	IBFieldUpdated               = "_updated"
	IBFieldConid                 = "conid"
	ibMarketDataUnavailableValue = "N/A"
)

var IBUnderlyingFields = []string{IBFieldLast, IBFieldBid, IBFieldAsk, IBFieldUnderlyingImpliedVol}

var IBOptionFields = []string{
	IBFieldLast, IBFieldBid, IBFieldAsk,
	IBFieldDelta, IBFieldGamma, IBFieldTheta, IBFieldVega,
	IBFieldImpliedVol, IBFieldOptionOpenInterest,
}

// ParseIBNumber parses a Client Portal field value. Prices may carry a C
// (closed) or H (halted) prefix, volatilities a % suffix, and sizes a K/M
// multiplier. The bool result is false when the value is blank or N/A.
func ParseIBNumber(raw json.RawMessage) (float64, bool, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false, nil
	}

	if s[0] != '"' {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("ParseIBNumber: invalid number %s: %w", s, err)
		}

		return v, true, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false, fmt.Errorf("ParseIBNumber: invalid string %s: %w", s, err)
	}

	str = strings.TrimSpace(str)
	if str == "" || str == ibMarketDataUnavailableValue {
		return 0, false, nil
	}

	str = strings.TrimLeft(str, "CH")
	str = strings.ReplaceAll(str, ",", "")

	percent := false
	if strings.HasSuffix(str, "%") {
		percent = true
		str = strings.TrimSuffix(str, "%")
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(str, "K"):
		multiplier = 1e3
		str = strings.TrimSuffix(str, "K")
	case strings.HasSuffix(str, "M"):
		multiplier = 1e6
		str = strings.TrimSuffix(str, "M")
	}

	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false, fmt.Errorf("ParseIBNumber: invalid value %q: %w", str, err)
	}

	if percent {
		v = v / 100
	}

	return v * multiplier, true, nil
}

// IBFieldsToTick converts a Client Portal market data object into a sparse tick.
// Only the fields present in the object are set.
func IBFieldsToTick(fields map[string]json.RawMessage) (*eventmodels.MarketDataTick, error) {
	tick := &eventmodels.MarketDataTick{}

	if raw, found := fields[IBFieldConid]; found {
		if err := json.Unmarshal(raw, &tick.ContractID); err != nil {
			return nil, fmt.Errorf("IBFieldsToTick: %w", err)
		}
	}

	if raw, found := fields[IBFieldUpdated]; found {
		ms, ok, err := ParseIBNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("IBFieldsToTick: _updated: %w", err)
		}

		if ok {
			tick.Timestamp = time.UnixMilli(int64(ms)).UTC()
		}
	}

	floats := []struct {
		code string
		dst  **float64
	}{
		{IBFieldLast, &tick.Last},
		{IBFieldBid, &tick.Bid},
		{IBFieldAsk, &tick.Ask},
		{IBFieldDelta, &tick.Delta},
		{IBFieldGamma, &tick.Gamma},
		{IBFieldTheta, &tick.Theta},
		{IBFieldVega, &tick.Vega},
		{IBFieldImpliedVol, &tick.ImpliedVolatility},
	}

	for _, f := range floats {
		raw, found := fields[f.code]
		if !found {
			continue
		}

		v, ok, err := ParseIBNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("IBFieldsToTick: field %s: %w", f.code, err)
		}

		if ok {
			*f.dst = eventmodels.Float64Ptr(v)
		}
	}

	if raw, found := fields[IBFieldOptionOpenInterest]; found {
		v, ok, err := ParseIBNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("IBFieldsToTick: field %s: %w", IBFieldOptionOpenInterest, err)
		}

		if ok {
			tick.OpenInterest = eventmodels.Int64Ptr(int64(math.Round(v)))
		}
	}

	return tick, nil
}
