// Package calibration implements the two-phase channel calibration engine:
// an initial timer-driven RX sweep against a peer on one channel, followed
// by per-channel extrapolation and event-driven confirmation across the
// rest of the band. It is the largest and most stateful component of this
// repository; the sweep and algebra it drives live in internal/tuning, and
// the codes it discovers are published to internal/registry.
package calibration
