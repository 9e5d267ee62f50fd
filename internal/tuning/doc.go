// Package tuning implements the tuning-code algebra for the mote's
// crystal-less local oscillator.
//
// A Code is a (coarse, mid, fine) triple that selects a physical frequency.
// The three fields are not a pure base-32 numeral system: the transitions
// between them cross an empirically measured overlap band, so incrementing
// past a field boundary lands on a non-zero offset in the next field rather
// than resetting to zero.
package tuning
