package eventmodels

import (
	"fmt"
	"time"
)

// MarketSession is the regular trading window in exchange wall-clock time.
type MarketSession struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

func DefaultMarketSession() MarketSession {
	return MarketSession{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0}
}

func ParseMarketSession(open, close string) (MarketSession, error) {
	o, err := time.Parse("15:04", open)
	if err != nil {
		return MarketSession{}, fmt.Errorf("ParseMarketSession: invalid open %q: %w", open, err)
	}

	c, err := time.Parse("15:04", close)
	if err != nil {
		return MarketSession{}, fmt.Errorf("ParseMarketSession: invalid close %q: %w", close, err)
	}

	s := MarketSession{OpenHour: o.Hour(), OpenMinute: o.Minute(), CloseHour: c.Hour(), CloseMinute: c.Minute()}
	if s.CloseMinutes() <= s.OpenMinutes() {
		return MarketSession{}, fmt.Errorf("ParseMarketSession: close %s must be after open %s", close, open)
	}

	return s, nil
}

func (s MarketSession) OpenMinutes() int {
	return s.OpenHour*60 + s.OpenMinute
}

func (s MarketSession) CloseMinutes() int {
	return s.CloseHour*60 + s.CloseMinute
}
