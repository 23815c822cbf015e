package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// Spectrum returns the one-sided amplitude spectrum of data sampled at
// sampleRate, with the mean removed first. Any length is accepted.
func Spectrum(data []float64, sampleRate float64) (freqs, amplitude []float64) {
	n := len(data)
	if n < 2 || sampleRate <= 0 {
		return nil, nil
	}
	mean := stat.Mean(data, nil)
	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	half := n/2 + 1
	freqs = make([]float64, half)
	amplitude = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = float64(k) * sampleRate / float64(n)
		amplitude[k] = cmplx.Abs(coeffs[k]) / float64(n)
		if k > 0 && 2*k != n {
			amplitude[k] *= 2
		}
	}
	return freqs, amplitude
}

// Dominant returns the frequency and amplitude of the largest non-DC bin.
func Dominant(freqs, amplitude []float64) (float64, float64) {
	best := 0
	for k := 1; k < len(amplitude); k++ {
		if best == 0 || amplitude[k] > amplitude[best] {
			best = k
		}
	}
	if best == 0 {
		return 0, 0
	}
	return freqs[best], amplitude[best]
}
