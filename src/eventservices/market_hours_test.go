package eventservices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
)

func TestNthSundayOfMonth(t *testing.T) {
	assert.Equal(t, 8, nthSundayOfMonth(2026, time.March, 2))
	assert.Equal(t, 1, nthSundayOfMonth(2026, time.November, 1))
	assert.Equal(t, 10, nthSundayOfMonth(2024, time.March, 2))
	assert.Equal(t, 3, nthSundayOfMonth(2024, time.November, 1))
	assert.Equal(t, 9, nthSundayOfMonth(2025, time.March, 2))
	assert.Equal(t, 2, nthSundayOfMonth(2025, time.November, 1))
}

func TestIsEasternDaylightTime(t *testing.T) {
	t.Run("spring forward boundary", func(t *testing.T) {
		assert.False(t, IsEasternDaylightTime(time.Date(2026, time.March, 8, 6, 59, 59, 0, time.UTC)))
		assert.True(t, IsEasternDaylightTime(time.Date(2026, time.March, 8, 7, 0, 0, 0, time.UTC)))
	})

	t.Run("fall back boundary", func(t *testing.T) {
		assert.True(t, IsEasternDaylightTime(time.Date(2026, time.November, 1, 5, 59, 59, 0, time.UTC)))
		assert.False(t, IsEasternDaylightTime(time.Date(2026, time.November, 1, 6, 0, 0, 0, time.UTC)))
	})

	t.Run("2024 transitions", func(t *testing.T) {
		assert.False(t, IsEasternDaylightTime(time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)))
		assert.True(t, IsEasternDaylightTime(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)))
		assert.True(t, IsEasternDaylightTime(time.Date(2024, time.November, 2, 12, 0, 0, 0, time.UTC)))
		assert.False(t, IsEasternDaylightTime(time.Date(2024, time.November, 3, 12, 0, 0, 0, time.UTC)))
	})

	t.Run("offsets", func(t *testing.T) {
		assert.Equal(t, -4*time.Hour, EasternOffset(time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)))
		assert.Equal(t, -5*time.Hour, EasternOffset(time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)))
	})
}

func TestMarketOpenOn(t *testing.T) {
	session := eventmodels.DefaultMarketSession()

	t.Run("july and january differ in utc offset but not wall clock", func(t *testing.T) {
		july := MarketOpenOn(2026, time.July, 15, session)
		january := MarketOpenOn(2026, time.January, 15, session)

		assert.Equal(t, time.Date(2026, time.July, 15, 13, 30, 0, 0, time.UTC), july)
		assert.Equal(t, time.Date(2026, time.January, 15, 14, 30, 0, 0, time.UTC), january)

		julyLocal := ToExchangeTime(july)
		januaryLocal := ToExchangeTime(january)
		assert.Equal(t, 9, julyLocal.Hour())
		assert.Equal(t, 30, julyLocal.Minute())
		assert.Equal(t, 9, januaryLocal.Hour())
		assert.Equal(t, 30, januaryLocal.Minute())

		_, julyOffset := julyLocal.Zone()
		_, januaryOffset := januaryLocal.Zone()
		assert.NotEqual(t, julyOffset, januaryOffset)
	})

	t.Run("around transition sundays", func(t *testing.T) {
		assert.Equal(t, time.Date(2026, time.March, 6, 14, 30, 0, 0, time.UTC), MarketOpenOn(2026, time.March, 6, session))
		assert.Equal(t, time.Date(2026, time.March, 9, 13, 30, 0, 0, time.UTC), MarketOpenOn(2026, time.March, 9, session))
		assert.Equal(t, time.Date(2026, time.October, 30, 13, 30, 0, 0, time.UTC), MarketOpenOn(2026, time.October, 30, session))
		assert.Equal(t, time.Date(2026, time.November, 2, 14, 30, 0, 0, time.UTC), MarketOpenOn(2026, time.November, 2, session))
	})

	t.Run("close", func(t *testing.T) {
		assert.Equal(t, time.Date(2026, time.July, 15, 20, 0, 0, 0, time.UTC), MarketCloseOn(2026, time.July, 15, session))
		assert.Equal(t, time.Date(2026, time.January, 15, 21, 0, 0, 0, time.UTC), MarketCloseOn(2026, time.January, 15, session))
	})
}

func TestIsWithinTradingWindow(t *testing.T) {
	session := eventmodels.DefaultMarketSession()

	assert.True(t, IsWithinTradingWindow(time.Date(2026, time.July, 15, 13, 30, 0, 0, time.UTC), session))
	assert.False(t, IsWithinTradingWindow(time.Date(2026, time.July, 15, 13, 29, 59, 0, time.UTC), session))
	assert.True(t, IsWithinTradingWindow(time.Date(2026, time.July, 15, 19, 59, 0, 0, time.UTC), session))
	assert.False(t, IsWithinTradingWindow(time.Date(2026, time.July, 15, 20, 0, 0, 0, time.UTC), session))
	assert.False(t, IsWithinTradingWindow(time.Date(2026, time.July, 18, 15, 0, 0, 0, time.UTC), session), "saturday")
	assert.True(t, IsWithinTradingWindow(time.Date(2026, time.January, 15, 14, 30, 0, 0, time.UTC), session))
	assert.False(t, IsWithinTradingWindow(time.Date(2026, time.January, 15, 14, 0, 0, 0, time.UTC), session))
}

func TestNextMarketOpen(t *testing.T) {
	session := eventmodels.DefaultMarketSession()

	t.Run("early morning opens same day", func(t *testing.T) {
		now := time.Date(2026, time.July, 15, 7, 0, 0, 0, time.UTC) // 03:00 EDT
		assert.Equal(t, time.Date(2026, time.July, 15, 13, 30, 0, 0, time.UTC), NextMarketOpen(now, session))
	})

	t.Run("after close rolls to next day", func(t *testing.T) {
		now := time.Date(2026, time.July, 15, 21, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.July, 16, 13, 30, 0, 0, time.UTC), NextMarketOpen(now, session))
	})

	t.Run("friday evening rolls to monday", func(t *testing.T) {
		now := time.Date(2026, time.July, 17, 23, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.July, 20, 13, 30, 0, 0, time.UTC), NextMarketOpen(now, session))
	})

	t.Run("late evening utc is still the previous local day", func(t *testing.T) {
		now := time.Date(2026, time.July, 16, 2, 0, 0, 0, time.UTC) // 22:00 EDT on the 15th
		assert.Equal(t, time.Date(2026, time.July, 16, 13, 30, 0, 0, time.UTC), NextMarketOpen(now, session))
	})

	t.Run("weekend across spring forward", func(t *testing.T) {
		now := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.March, 9, 13, 30, 0, 0, time.UTC), NextMarketOpen(now, session))
	})

	t.Run("weekend across fall back", func(t *testing.T) {
		now := time.Date(2026, time.October, 31, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.November, 2, 14, 30, 0, 0, time.UTC), NextMarketOpen(now, session))
	})
}

func TestPlanMarketOpenStart(t *testing.T) {
	session := eventmodels.DefaultMarketSession()

	t.Run("inside window starts now", func(t *testing.T) {
		now := time.Date(2026, time.July, 15, 15, 0, 0, 0, time.UTC)
		at, immediate := PlanMarketOpenStart(now, session)
		require.True(t, immediate)
		assert.Equal(t, now, at)
	})

	t.Run("3 AM restart waits for open", func(t *testing.T) {
		now := time.Date(2026, time.January, 15, 8, 0, 0, 0, time.UTC)
		at, immediate := PlanMarketOpenStart(now, session)
		require.False(t, immediate)
		assert.Equal(t, time.Date(2026, time.January, 15, 14, 30, 0, 0, time.UTC), at)
	})
}
