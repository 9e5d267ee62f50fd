// Package feedback implements the closed-loop RX tuning controller that
// runs during steady-state operation, after a channel's calibration has
// latched. Each received frame carries an intermediate-frequency estimate;
// the controller averages a short window of these and nudges the RX tuning
// code by one fine step when the average drifts outside a tolerance band
// around the nominal count.
package feedback
