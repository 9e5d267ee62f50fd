// Package radio glues the channel registry to the transceiver: it looks up
// the calibrated tuning code for a channel and mode, programs the radio,
// and tracks what the RF path is currently doing.
//
// The package also ships a simulated transceiver and a wall-clock timer so
// the calibration subsystem can run end to end without hardware.
package radio
