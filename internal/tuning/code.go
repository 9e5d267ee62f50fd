package tuning

import "errors"

// MinCode and MaxCode bound every field of a Code.
const (
	MinCode uint8 = 0
	MaxCode uint8 = 31
)

// Empirical transition constants. The two sibling implementations this
// package is ported from disagreed on MidPerCoarseTransition (13 vs 14)
// and MidCodesBetweenChannels (5 vs 6); see DESIGN.md for the resolution.
const (
	// FinePerMidTransition is the fine code a carry into the next mid code
	// lands on, rather than 0, because the fine and mid ranges overlap.
	FinePerMidTransition uint8 = 9

	// MidPerCoarseTransition is the analogous overlap at the mid/coarse
	// boundary.
	MidPerCoarseTransition uint8 = 14

	// MidCodesBetweenChannels is the empirical mid-code spacing between two
	// neighboring 802.15.4 channels at the same coarse code.
	MidCodesBetweenChannels uint8 = 5

	// MidCodesBetweenRXAndTX is how many mid codes above TX the RX code for
	// the same frequency sits.
	MidCodesBetweenRXAndTX uint8 = 1
)

// ErrCoarseOverflow is returned when an operation would carry the coarse
// field above MaxCode. The original firmware left this as undefined
// behavior (an unchecked uint8_t increment); this port makes it a checked
// error instead.
var ErrCoarseOverflow = errors.New("tuning: coarse code overflow")

// ErrCoarseUnderflow is returned when an operation would borrow the coarse
// field below MinCode.
var ErrCoarseUnderflow = errors.New("tuning: coarse code underflow")

// Code is a (coarse, mid, fine) tuning code for the mote's local
// oscillator. The zero value is a valid code at the bottom of the range.
type Code struct {
	Coarse uint8
	Mid    uint8
	Fine   uint8
}

// Less reports whether c sorts strictly before other in the lexicographic
// order (coarse, mid, fine).
func (c Code) Less(other Code) bool {
	if c.Coarse != other.Coarse {
		return c.Coarse < other.Coarse
	}
	if c.Mid != other.Mid {
		return c.Mid < other.Mid
	}
	return c.Fine < other.Fine
}

// IncrementFine advances the fine code by n, carrying into the mid code
// (and possibly the coarse code) if the fine field would overflow.
func (c *Code) IncrementFine(n uint8) error {
	if int(c.Fine)+int(n) > int(MaxCode) {
		newFine := int(c.Fine) + int(FinePerMidTransition) + int(n) - int(MaxCode) - 1
		c.Fine = uint8(newFine)
		return c.IncrementMid(1)
	}
	c.Fine += n
	return nil
}

// DecrementFine is the symmetric counterpart of IncrementFine.
func (c *Code) DecrementFine(n uint8) error {
	if int(c.Fine) < int(n) {
		newFine := int(c.Fine) + int(MaxCode) + 1 - int(FinePerMidTransition) - int(n)
		c.Fine = uint8(newFine)
		return c.DecrementMid(1)
	}
	c.Fine -= n
	return nil
}

// IncrementMid advances the mid code by n, carrying into the coarse code if
// the mid field would overflow. Returns ErrCoarseOverflow if the carry
// would push the coarse code past MaxCode.
func (c *Code) IncrementMid(n uint8) error {
	if int(c.Mid)+int(n) > int(MaxCode) {
		newMid := int(c.Mid) + int(MidPerCoarseTransition) + int(n) - int(MaxCode) - 1
		if c.Coarse == MaxCode {
			return ErrCoarseOverflow
		}
		c.Mid = uint8(newMid)
		c.Coarse++
		return nil
	}
	c.Mid += n
	return nil
}

// DecrementMid is the symmetric counterpart of IncrementMid. Returns
// ErrCoarseUnderflow if the borrow would push the coarse code below
// MinCode.
func (c *Code) DecrementMid(n uint8) error {
	if int(c.Mid) < int(n) {
		newMid := int(c.Mid) + int(MaxCode) + 1 - int(MidPerCoarseTransition) - int(n)
		if c.Coarse == MinCode {
			return ErrCoarseUnderflow
		}
		c.Mid = uint8(newMid)
		c.Coarse--
		return nil
	}
	c.Mid -= n
	return nil
}

// RolloverMid nudges the mid code away from a coarse boundary. If mid is
// within threshold of MaxCode, it is pulled back by one coarse transition
// and the coarse code is incremented; symmetrically for MinCode. Outside
// the threshold band this is a no-op, so repeated calls are idempotent.
func (c *Code) RolloverMid(threshold uint8) error {
	if int(c.Mid)+int(threshold) > int(MaxCode) {
		if c.Coarse == MaxCode {
			return ErrCoarseOverflow
		}
		c.Mid -= MidPerCoarseTransition
		c.Coarse++
		return nil
	}
	if int(c.Mid) < int(threshold) {
		if c.Coarse == MinCode {
			return ErrCoarseUnderflow
		}
		c.Mid += MidPerCoarseTransition
		c.Coarse--
		return nil
	}
	return nil
}

// EstimatePreviousChannel estimates the tuning code for the 802.15.4
// channel immediately below this one, at the same coarse code.
func (c *Code) EstimatePreviousChannel() error {
	return c.DecrementMid(MidCodesBetweenChannels)
}

// EstimateNextChannel estimates the tuning code for the 802.15.4 channel
// immediately above this one.
func (c *Code) EstimateNextChannel() error {
	return c.IncrementMid(MidCodesBetweenChannels)
}

// EstimateTXFromRX estimates the TX tuning code for the same frequency as
// this RX tuning code.
func (c *Code) EstimateTXFromRX() error {
	return c.DecrementMid(MidCodesBetweenRXAndTX)
}

// EstimateRXFromTX estimates the RX tuning code for the same frequency as
// this TX tuning code.
func (c *Code) EstimateRXFromTX() error {
	return c.IncrementMid(MidCodesBetweenRXAndTX)
}
