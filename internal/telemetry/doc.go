// Package telemetry fans calibration progress events out to in-process
// subscribers.
//
// The calibration engine and feedback controller publish an event per
// state change (channel calibrated, sweep advanced, feedback correction);
// the hub buffers the most recent events so a late subscriber can replay
// the progress it missed.
package telemetry
