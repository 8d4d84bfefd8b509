// Package audio resamples PCM16 mono audio between the gateway's 16 kHz
// wire rate and the cloud speech services' 24 kHz rate, grounded on the
// teacher's byte<->int16 conversion and linear-interpolation resampling
// style, extended with TPDF dither on the 16->24 upsampling path and an
// anti-alias filter on the 24->16 downsampling path.
package audio

import (
	"math"
	"math/rand"
)

// Frame16kBytes and Frame24kBytes are the fixed per-20ms PCM16 mono
// frame sizes at the gateway's wire rate and the internal processing
// rate, respectively (spec P1: one 640-byte 16kHz frame resamples to
// exactly one 960-byte 24kHz frame).
const (
	Frame16kBytes = 640
	Frame24kBytes = 960
)

// bytesToSamples converts little-endian PCM16 bytes into int16 samples.
func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// samplesToBytes converts int16 samples back to little-endian PCM16 bytes.
func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s & 0xFF)
		out[i*2+1] = byte((s >> 8) & 0xFF)
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// tpdfDither returns a triangular-probability-density-function dither
// sample scaled by 0.5 LSB, used to de-correlate quantization noise when
// upsampling 16kHz to 24kHz.
func tpdfDither() float64 {
	return 0.5 * (rand.Float64() - rand.Float64())
}

// Resample16kTo24k upsamples 16 kHz PCM16 to 24 kHz via linear
// interpolation at a 3:2 ratio with TPDF dither applied before
// quantization, per spec §4.3.
func Resample16kTo24k(pcm16k []byte) []byte {
	if len(pcm16k) == 0 {
		return nil
	}

	in := bytesToSamples(pcm16k)
	if len(in) == 0 {
		return nil
	}

	// 2 input samples -> 3 output samples.
	outLen := (len(in) * 3) / 2
	out := make([]int16, 0, outLen)

	for i := 0; i < len(in); i += 2 {
		s0 := float64(in[i])
		var s1, s2 float64
		if i+1 < len(in) {
			s1 = float64(in[i+1])
		} else {
			s1 = s0
		}
		if i+2 < len(in) {
			s2 = float64(in[i+2])
		} else {
			s2 = s1
		}

		out = append(out, clampInt16(s0+tpdfDither()))
		out = append(out, clampInt16(s0+(s1-s0)/3*2+tpdfDither()))
		out = append(out, clampInt16(s1+(s2-s1)/3*1+tpdfDither()))
	}

	return samplesToBytes(out)
}

const (
	firTaps       = 64
	firCutoffHz   = 7200.0
	firSampleRate = 24000.0
)

var lowPassCoeffs = buildBlackmanSincLowPass(firTaps, firCutoffHz, firSampleRate)

// buildBlackmanSincLowPass precomputes a Blackman-windowed sinc FIR
// low-pass filter normalized to unit DC gain.
func buildBlackmanSincLowPass(taps int, cutoffHz, sampleRate float64) []float64 {
	coeffs := make([]float64, taps)
	fc := cutoffHz / sampleRate // normalized cutoff, cycles/sample
	m := float64(taps - 1)

	var sum float64
	for n := 0; n < taps; n++ {
		x := float64(n) - m/2
		var sinc float64
		if x == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		window := 0.42 - 0.5*math.Cos(2*math.Pi*float64(n)/m) + 0.08*math.Cos(4*math.Pi*float64(n)/m)
		coeffs[n] = sinc * window
		sum += coeffs[n]
	}

	if sum != 0 {
		for n := range coeffs {
			coeffs[n] /= sum
		}
	}

	return coeffs
}

// applyLowPass convolves samples with the precomputed FIR, zero-padding
// edges so the output length matches the input.
func applyLowPass(samples []int16) []float64 {
	n := len(samples)
	out := make([]float64, n)
	half := firTaps / 2

	for i := 0; i < n; i++ {
		var acc float64
		for k := 0; k < firTaps; k++ {
			srcIdx := i + k - half
			if srcIdx < 0 || srcIdx >= n {
				continue // zero-padding
			}
			acc += lowPassCoeffs[k] * float64(samples[srcIdx])
		}
		out[i] = acc
	}

	return out
}

// Resample24kTo16k low-pass filters 24 kHz PCM16 with a 64-tap
// Blackman-sinc FIR (cutoff 7.2 kHz) to prevent aliasing, then decimates
// 3:2 down to 16 kHz, per spec §4.3.
func Resample24kTo16k(pcm24k []byte) []byte {
	if len(pcm24k) == 0 {
		return nil
	}

	in := bytesToSamples(pcm24k)
	if len(in) == 0 {
		return nil
	}

	filtered := applyLowPass(in)

	outLen := (len(filtered) * 2) / 3
	out := make([]int16, 0, outLen)

	// 3:2 decimation: emit the first two samples of every group of three,
	// relying on the preceding low-pass to have already removed content
	// above the new Nyquist so plain dropping doesn't alias.
	for i := 0; i+2 < len(filtered); i += 3 {
		out = append(out, clampInt16(filtered[i]))
		out = append(out, clampInt16(filtered[i+1]))
	}

	return samplesToBytes(out)
}
