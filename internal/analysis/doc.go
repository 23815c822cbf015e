// Package analysis characterizes the balance quality of a finished run from
// its recorded ticks.
//
//   - [ComputeSway]: posturography statistics of the CoM ground projection
//   - [Spectrum]: one-sided amplitude spectrum of a uniformly sampled signal
//
// A balanced stance shows small sway and no dominant low-frequency peak in
// the ICP error:
//
//	sway := analysis.ComputeSway(xs, ys, dt)
//	freqs, amp := analysis.Spectrum(icpErr, 1/dt)
//	f, _ := analysis.Dominant(freqs, amp)
package analysis
