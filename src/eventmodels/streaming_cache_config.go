package eventmodels

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type StreamingCacheConfig struct {
	StaleThreshold        time.Duration `yaml:"stale_threshold"`
	RefreshInterval       time.Duration `yaml:"refresh_interval"`
	SnapshotTimeout       time.Duration `yaml:"snapshot_timeout"`
	MarketOpen            string        `yaml:"market_open"`
	MarketClose           string        `yaml:"market_close"`
	AutoStopAtClose       bool          `yaml:"auto_stop_at_close"`
	Symbols               []string      `yaml:"symbols"`
	StrikeRangeMultiplier float64       `yaml:"strike_range_multiplier"`
	FallbackRangePercent  float64       `yaml:"fallback_range_percent"`
	MaxStrikesPerSide     int           `yaml:"max_strikes_per_side"`
}

const (
	DefaultStaleThreshold        = 5000 * time.Millisecond
	DefaultRefreshInterval       = 5 * time.Minute
	DefaultSnapshotTimeout       = 30 * time.Second
	DefaultStrikeRangeMultiplier = 1.0
	DefaultFallbackRangePercent  = 2.0
	DefaultMaxStrikesPerSide     = 30
)

func DefaultStreamingCacheConfig() StreamingCacheConfig {
	return StreamingCacheConfig{
		StaleThreshold:        DefaultStaleThreshold,
		RefreshInterval:       DefaultRefreshInterval,
		SnapshotTimeout:       DefaultSnapshotTimeout,
		MarketOpen:            "09:30",
		MarketClose:           "16:00",
		StrikeRangeMultiplier: DefaultStrikeRangeMultiplier,
		FallbackRangePercent:  DefaultFallbackRangePercent,
		MaxStrikesPerSide:     DefaultMaxStrikesPerSide,
	}
}

func LoadStreamingCacheConfig(path string) (StreamingCacheConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StreamingCacheConfig{}, fmt.Errorf("LoadStreamingCacheConfig: failed to read %s: %w", path, err)
	}

	return ParseStreamingCacheConfig(data)
}

// ParseStreamingCacheConfig decodes YAML on top of the defaults, so omitted
// keys keep their default value.
func ParseStreamingCacheConfig(data []byte) (StreamingCacheConfig, error) {
	config := DefaultStreamingCacheConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return StreamingCacheConfig{}, fmt.Errorf("ParseStreamingCacheConfig: failed to unmarshal: %w", err)
	}

	for i, s := range config.Symbols {
		config.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if err := config.Validate(); err != nil {
		return StreamingCacheConfig{}, err
	}

	return config, nil
}

func (c *StreamingCacheConfig) Validate() error {
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("StreamingCacheConfig: stale_threshold must be positive, found %v", c.StaleThreshold)
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("StreamingCacheConfig: refresh_interval must be positive, found %v", c.RefreshInterval)
	}

	if c.SnapshotTimeout <= 0 {
		return fmt.Errorf("StreamingCacheConfig: snapshot_timeout must be positive, found %v", c.SnapshotTimeout)
	}

	if c.StrikeRangeMultiplier <= 0 {
		return fmt.Errorf("StreamingCacheConfig: strike_range_multiplier must be positive, found %v", c.StrikeRangeMultiplier)
	}

	if c.FallbackRangePercent <= 0 {
		return fmt.Errorf("StreamingCacheConfig: fallback_range_percent must be positive, found %v", c.FallbackRangePercent)
	}

	if c.MaxStrikesPerSide <= 0 {
		return fmt.Errorf("StreamingCacheConfig: max_strikes_per_side must be positive, found %v", c.MaxStrikesPerSide)
	}

	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("StreamingCacheConfig: symbols: %w", ErrSymbolRequired)
		}
	}

	if _, err := c.Session(); err != nil {
		return fmt.Errorf("StreamingCacheConfig: %w", err)
	}

	return nil
}

func (c *StreamingCacheConfig) Session() (MarketSession, error) {
	return ParseMarketSession(c.MarketOpen, c.MarketClose)
}
