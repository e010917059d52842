package strategy

import (
	"fmt"

	"StockSentinel/internal/calculator"
)

// Signal modes.
const (
	// ModeLevel fires on today's J alone being beyond the threshold.
	ModeLevel = "level"
	// ModeCrossover fires only on the day J crosses the threshold.
	ModeCrossover = "crossover"
)

// Config holds the thresholds every strategy call is evaluated against.
type Config struct {
	BuyJ             float64 `yaml:"buy_j" default:"10"`
	SellJ            float64 `yaml:"sell_j" default:"90"`
	BuyPE            float64 `yaml:"buy_pe" default:"20" validate:"gte=0"`
	SellPE           float64 `yaml:"sell_pe" default:"40" validate:"gte=0"`
	OscillatorWindow int     `yaml:"oscillator_window" default:"9" validate:"gte=1"`
	VolumeMultiplier float64 `yaml:"volume_multiplier" default:"2.0" validate:"gt=0"`
	SignalMode       string  `yaml:"signal_mode" default:"level" validate:"oneof=level crossover"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		BuyJ:             10,
		SellJ:            90,
		BuyPE:            20,
		SellPE:           40,
		OscillatorWindow: calculator.DefaultWindow,
		VolumeMultiplier: calculator.DefaultVolumeMultiplier,
		SignalMode:       ModeLevel,
	}
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c Config) Validate() error {
	if c.BuyJ >= c.SellJ {
		return fmt.Errorf("strategy.buy_j (%.2f) must be below strategy.sell_j (%.2f)", c.BuyJ, c.SellJ)
	}
	if c.BuyPE > c.SellPE {
		return fmt.Errorf("strategy.buy_pe (%.2f) must not exceed strategy.sell_pe (%.2f)", c.BuyPE, c.SellPE)
	}
	if c.OscillatorWindow < 1 {
		return fmt.Errorf("strategy.oscillator_window must be positive")
	}
	if c.VolumeMultiplier <= 0 {
		return fmt.Errorf("strategy.volume_multiplier must be positive")
	}
	if c.SignalMode != ModeLevel && c.SignalMode != ModeCrossover {
		return fmt.Errorf("strategy.signal_mode must be %q or %q, got %q", ModeLevel, ModeCrossover, c.SignalMode)
	}
	return nil
}
