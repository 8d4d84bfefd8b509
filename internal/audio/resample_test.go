package audio

import (
	"math"
	"testing"
)

func toneBytes(freqHz float64, sampleRate int, seconds float64, amplitude float64) []byte {
	n := int(float64(sampleRate) * seconds)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		samples[i] = clampInt16(amplitude * 32767 * math.Sin(2*math.Pi*freqHz*t))
	}
	return samplesToBytes(samples)
}

func TestResampleEmptyInput(t *testing.T) {
	if out := Resample16kTo24k(nil); out != nil {
		t.Errorf("expected nil output for empty input, got %d bytes", len(out))
	}
	if out := Resample24kTo16k([]byte{}); len(out) != 0 {
		t.Errorf("expected empty output for empty input, got %d bytes", len(out))
	}
}

func TestResample16to24LengthRatio(t *testing.T) {
	pcm := toneBytes(440, 16000, 0.1, 0.5)
	out := Resample16kTo24k(pcm)

	inSamples := len(pcm) / 2
	outSamples := len(out) / 2
	wantRatio := 1.5
	gotRatio := float64(outSamples) / float64(inSamples)

	if math.Abs(gotRatio-wantRatio) > 0.01 {
		t.Errorf("expected ~1.5x sample count, got ratio %.3f (%d -> %d)", gotRatio, inSamples, outSamples)
	}
}

func TestResamplePeakAmplitudeWithinRange(t *testing.T) {
	pcm := toneBytes(440, 16000, 0.5, 0.99)
	out24 := Resample16kTo24k(pcm)
	out16 := Resample24kTo16k(out24)

	for _, samples := range [][]int16{bytesToSamples(out24), bytesToSamples(out16)} {
		for _, s := range samples {
			if s > 32767 || s < -32768 {
				t.Fatalf("sample %d outside int16 range", s)
			}
		}
	}
}

func TestRoundTripPreservesToneCorrelation(t *testing.T) {
	pcm := toneBytes(440, 16000, 1.0, 0.8)

	up := Resample16kTo24k(pcm)
	down := Resample24kTo16k(up)

	orig := bytesToSamples(pcm)
	back := bytesToSamples(down)

	n := len(orig)
	if len(back) < n {
		n = len(back)
	}

	corr := pearsonCorrelation(orig[:n], back[:n])
	if corr < 0.95 {
		t.Errorf("round-trip correlation too low: %.4f", corr)
	}
}

func pearsonCorrelation(a, b []int16) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += float64(a[i])
		sumB += float64(b[i])
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var num, denA, denB float64
	for i := 0; i < n; i++ {
		da := float64(a[i]) - meanA
		db := float64(b[i]) - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}

	if denA == 0 || denB == 0 {
		return 0
	}

	return num / math.Sqrt(denA*denB)
}

func TestOddLengthBufferDoesNotPanic(t *testing.T) {
	odd := make([]byte, 641)
	_ = Resample16kTo24k(odd)
	_ = Resample24kTo16k(odd)
}
