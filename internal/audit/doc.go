// Package audit is the diagnostic trace for the tuning subsystem.
//
// It plays the role the UART plays on the mote: every tuning-code
// observation is written as the same line a mote would push over serial,
// wrapped in a JSONL record with structured fields and a per-run ID for
// offline analysis.
package audit
