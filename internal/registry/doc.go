// Package registry holds the per-channel, per-mode tuning codes the mote
// has settled on. It is the thin shared-state layer between the
// calibration engine, which writes codes as it discovers them, and the MAC,
// which reads them before every transmission or receive window.
//
// Architecture References:
//   - IEEE 802.15.4-2015 §8.1.2.2: channel numbering for the 2.4 GHz PHY
package registry
