package calibration

import "github.com/open-scum/scumcal/internal/tuning"

// State is the calibration engine's state machine position.
type State int

// StateInvalid is a poison value, never assigned by normal operation.
const StateInvalid State = -1

const (
	StateInit State = iota
	StateInitialRX
	StateInitialRXIdle
	StateInitialRXReceived
	StateRemainingRX
	StateRXDone
	StateTXCal
	StateFeedback
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateInitialRX:
		return "INITIAL_RX"
	case StateInitialRXIdle:
		return "INITIAL_RX_IDLE"
	case StateInitialRXReceived:
		return "INITIAL_RX_RECEIVED"
	case StateRemainingRX:
		return "REMAINING_RX"
	case StateRXDone:
		return "RX_DONE"
	case StateTXCal:
		return "TX_CAL"
	case StateFeedback:
		return "FEEDBACK"
	default:
		return "INVALID"
	}
}

// MaxNumFailures is how many consecutive failures on a channel/mode before
// the engine advances its sweep by one step.
const MaxNumFailures = 2

// MidCodeThreshold is the mid code at or above which a received tuning code
// is considered close enough to a coarse rollover to warrant the long RX
// timeout on the next window.
const MidCodeThreshold = 24

// ModeInfo is the engine's per-(channel, mode) bookkeeping: the current
// best tuning code, the sweep window it was or is being discovered within,
// and enough failure history to decide when to advance that sweep.
type ModeInfo struct {
	TuningCode  tuning.Code
	SweepConfig tuning.SweepConfig
	NumFailures int
	Calibrated  bool
	Seeded      bool

	sweep *tuning.Sweep
}

// ChannelInfo bundles the RX and TX bookkeeping for one channel.
type ChannelInfo struct {
	RX ModeInfo
	TX ModeInfo
}
