package eventservices

import (
	"time"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
)

// US exchange daylight-saving rule: from the second Sunday in March at 02:00
// local until the first Sunday in November at 02:00 local. No tzdata lookup.
const (
	easternStandardOffset = -5 * time.Hour
	easternDaylightOffset = -4 * time.Hour
)

var (
	easternStandardZone = time.FixedZone("EST", int(easternStandardOffset.Seconds()))
	easternDaylightZone = time.FixedZone("EDT", int(easternDaylightOffset.Seconds()))
)

// nthSundayOfMonth returns the day of month of the nth Sunday.
func nthSundayOfMonth(year int, month time.Month, n int) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	firstSunday := 1 + (7-int(first))%7
	return firstSunday + 7*(n-1)
}

// DaylightSavingBounds returns the UTC instants at which daylight time starts
// and ends in the given year.
func DaylightSavingBounds(year int) (time.Time, time.Time) {
	start := time.Date(year, time.March, nthSundayOfMonth(year, time.March, 2), 2, 0, 0, 0, time.UTC).Add(-easternStandardOffset)
	end := time.Date(year, time.November, nthSundayOfMonth(year, time.November, 1), 2, 0, 0, 0, time.UTC).Add(-easternDaylightOffset)
	return start, end
}

func IsEasternDaylightTime(t time.Time) bool {
	u := t.UTC()
	start, end := DaylightSavingBounds(u.Year())
	return !u.Before(start) && u.Before(end)
}

func EasternOffset(t time.Time) time.Duration {
	if IsEasternDaylightTime(t) {
		return easternDaylightOffset
	}

	return easternStandardOffset
}

// ToExchangeTime expresses t in exchange wall-clock time.
func ToExchangeTime(t time.Time) time.Time {
	if IsEasternDaylightTime(t) {
		return t.In(easternDaylightZone)
	}

	return t.In(easternStandardZone)
}

// ExchangeWallClock converts an exchange-local date and time to an instant.
// Only valid away from the 02:00 transition hour, which trading hours never touch.
func ExchangeWallClock(year int, month time.Month, day, hour, minute int) time.Time {
	standard := time.Date(year, month, day, hour, minute, 0, 0, time.UTC).Add(-easternStandardOffset)
	daylight := time.Date(year, month, day, hour, minute, 0, 0, time.UTC).Add(-easternDaylightOffset)
	if IsEasternDaylightTime(daylight) {
		return daylight
	}

	return standard
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

func MarketOpenOn(year int, month time.Month, day int, session eventmodels.MarketSession) time.Time {
	return ExchangeWallClock(year, month, day, session.OpenHour, session.OpenMinute)
}

func MarketCloseOn(year int, month time.Month, day int, session eventmodels.MarketSession) time.Time {
	return ExchangeWallClock(year, month, day, session.CloseHour, session.CloseMinute)
}

// IsWithinTradingWindow reports whether now falls on a weekday between the
// session open (inclusive) and close (exclusive). Exchange holidays are not modeled.
func IsWithinTradingWindow(now time.Time, session eventmodels.MarketSession) bool {
	local := ToExchangeTime(now)
	if !isWeekday(local.Weekday()) {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= session.OpenMinutes() && minutes < session.CloseMinutes()
}

// NextMarketOpen returns the first session open at or after now.
func NextMarketOpen(now time.Time, session eventmodels.MarketSession) time.Time {
	local := ToExchangeTime(now)
	return nextMarketOpenFrom(local.Year(), local.Month(), local.Day(), now, session, 0)
}

func nextMarketOpenFrom(year int, month time.Month, day int, now time.Time, session eventmodels.MarketSession, depth int) time.Time {
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	open := MarketOpenOn(date.Year(), date.Month(), date.Day(), session)

	if isWeekday(date.Weekday()) && !open.Before(now) {
		return open
	}

	// a week always contains a weekday open
	if depth > 7 {
		return open
	}

	next := date.AddDate(0, 0, 1)
	return nextMarketOpenFrom(next.Year(), next.Month(), next.Day(), now, session, depth+1)
}

// MarketCloseAfter returns the close of the session containing now.
func MarketCloseAfter(now time.Time, session eventmodels.MarketSession) time.Time {
	local := ToExchangeTime(now)
	return MarketCloseOn(local.Year(), local.Month(), local.Day(), session)
}

// PlanMarketOpenStart decides how a scheduled start should run: immediately
// when now is inside the trading window, otherwise at the next open.
func PlanMarketOpenStart(now time.Time, session eventmodels.MarketSession) (time.Time, bool) {
	if IsWithinTradingWindow(now, session) {
		return now, true
	}

	return NextMarketOpen(now, session), false
}
