package config

import (
	"fmt"

	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

// Validate enforces the tunables' internal consistency rules.
func Validate(t *Tunables) error {
	if t == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateChannel(t); err != nil {
		return fmt.Errorf("channel validation failed: %w", err)
	}
	if err := validateTimeouts(t); err != nil {
		return fmt.Errorf("timeout validation failed: %w", err)
	}
	if err := validateFeedback(t); err != nil {
		return fmt.Errorf("feedback validation failed: %w", err)
	}
	return nil
}

func validateChannel(t *Tunables) error {
	if t.InitialChannel < registry.MinChannel || t.InitialChannel > registry.MaxChannel {
		return fmt.Errorf("initial channel %d outside [%d, %d]", t.InitialChannel, registry.MinChannel, registry.MaxChannel)
	}
	if t.MidCodeThreshold > tuning.MaxCode {
		return fmt.Errorf("mid code threshold %d exceeds max code %d", t.MidCodeThreshold, tuning.MaxCode)
	}
	return nil
}

func validateTimeouts(t *Tunables) error {
	if t.RXTimeout <= 0 {
		return fmt.Errorf("RX timeout must be positive, got %v", t.RXTimeout)
	}
	if t.RXLongTimeout < t.RXTimeout {
		return fmt.Errorf("RX long timeout %v must be >= RX timeout %v", t.RXLongTimeout, t.RXTimeout)
	}
	if t.MaxNumFailures <= 0 {
		return fmt.Errorf("max num failures must be positive, got %d", t.MaxNumFailures)
	}
	return nil
}

func validateFeedback(t *Tunables) error {
	if t.IFWindowSize <= 0 {
		return fmt.Errorf("IF window size must be positive, got %d", t.IFWindowSize)
	}
	if t.MaxIFOffset < 0 {
		return fmt.Errorf("max IF offset must be non-negative, got %d", t.MaxIFOffset)
	}
	if t.NominalIFCount-t.MaxIFOffset < 0 {
		return fmt.Errorf("nominal IF count %d minus offset %d must not go negative", t.NominalIFCount, t.MaxIFOffset)
	}
	return nil
}
