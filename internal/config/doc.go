// Package config loads the calibration engine's and feedback controller's
// tunables: sweep timeouts, failure thresholds, and the IF feedback band.
// Defaults layer under environment variable overrides, which layer under an
// optional config.json file; the merged result is validated before use.
package config
