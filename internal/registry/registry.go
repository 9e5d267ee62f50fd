package registry

import (
	"fmt"
	"sync"

	"github.com/open-scum/scumcal/internal/tuning"
)

// MinChannel and MaxChannel bound the IEEE 802.15.4 channels SCuM tunes
// across.
const (
	MinChannel = 11
	MaxChannel = 26
	NumChannels = MaxChannel - MinChannel + 1
)

// Mode selects which tuning code slot a channel's RF path addresses.
type Mode int

const (
	// Invalid marks a Mode that was never set.
	Invalid Mode = -1
	// TX is the transmit tuning code slot.
	TX Mode = 0
	// RX is the receive tuning code slot.
	RX Mode = 1
)

func (m Mode) String() string {
	switch m {
	case TX:
		return "TX"
	case RX:
		return "RX"
	default:
		return "INVALID"
	}
}

// ErrChannelOutOfRange is returned for any channel outside
// [MinChannel, MaxChannel].
var ErrChannelOutOfRange = fmt.Errorf("registry: channel out of range [%d, %d]", MinChannel, MaxChannel)

func channelIndex(channel int) (int, error) {
	if channel < MinChannel || channel > MaxChannel {
		return 0, ErrChannelOutOfRange
	}
	return channel - MinChannel, nil
}

// Registry stores the current TX and RX tuning codes for every channel.
// It is safe for concurrent use: the calibration engine writes as it
// discovers codes, the MAC reads before every radio transition.
type Registry struct {
	mu sync.RWMutex
	tx [NumChannels]tuning.Code
	rx [NumChannels]tuning.Code
}

// New returns an empty Registry. No channel is calibrated until
// SetTuningCode is called for it.
func New() *Registry {
	return &Registry{}
}

// SetTuningCode records the tuning code for a channel and mode. It returns
// ErrChannelOutOfRange for a channel outside the supported band; an
// unrecognized mode is silently ignored, mirroring the firmware this is
// ported from, which dispatches on mode without an else-error branch.
func (r *Registry) SetTuningCode(channel int, mode Mode, code tuning.Code) error {
	idx, err := channelIndex(channel)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch mode {
	case TX:
		r.tx[idx] = code
	case RX:
		r.rx[idx] = code
	}
	return nil
}

// GetTuningCode returns the tuning code recorded for a channel and mode. It
// returns ErrChannelOutOfRange for a channel outside the supported band.
// An unrecognized mode returns the zero Code.
func (r *Registry) GetTuningCode(channel int, mode Mode) (tuning.Code, error) {
	idx, err := channelIndex(channel)
	if err != nil {
		return tuning.Code{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch mode {
	case TX:
		return r.tx[idx], nil
	case RX:
		return r.rx[idx], nil
	default:
		return tuning.Code{}, nil
	}
}
