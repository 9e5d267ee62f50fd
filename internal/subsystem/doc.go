// Package subsystem assembles the frequency tuning stack into the single
// value a mote bootstrap owns.
//
// It routes link events from the MAC into the calibration engine, frames
// into the feedback controller once a channel's calibration has latched,
// and every operation through the audit trace and telemetry hub.
package subsystem
