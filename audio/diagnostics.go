package audio

import "math"

// Diagnostics summarises a waveform for the technical-details panel. It is
// display-only and never feeds the classifier.
type Diagnostics struct {
	RMS               float64 `json:"rms"`
	Peak              float64 `json:"peak"`
	SNRDb             float64 `json:"snrDb"`
	ZeroCrossingRate  float64 `json:"zeroCrossingRate"`
	SilentProportion  float64 `json:"silentProportion"`
	ClippedProportion float64 `json:"clippedProportion"`
}

const (
	silenceThreshold = 1e-4
	clipThreshold    = 0.999
)

// Diagnose computes level statistics over w.
func Diagnose(w Waveform) Diagnostics {
	samples := w.samples
	if len(samples) == 0 {
		return Diagnostics{}
	}

	var peak float64
	var silent, clipped int
	for _, s := range samples {
		a := math.Abs(s)
		peak = math.Max(peak, a)
		if a < silenceThreshold {
			silent++
		}
		if a >= clipThreshold {
			clipped++
		}
	}

	return Diagnostics{
		RMS:               rootMeanSquare(samples),
		Peak:              peak,
		SNRDb:             EstimateSNR(samples),
		ZeroCrossingRate:  zeroCrossingRate(samples),
		SilentProportion:  float64(silent) / float64(len(samples)),
		ClippedProportion: float64(clipped) / float64(len(samples)),
	}
}

// EstimateSNR estimates signal-to-noise ratio in dB, treating the first tenth
// of the clip (at least 512 samples) as the noise reference.
func EstimateSNR(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	noiseLength := max(len(samples)/10, 512)
	noiseLength = min(noiseLength, len(samples))

	noise := rootMeanSquare(samples[:noiseLength])
	noisePower := noise * noise

	signal := rootMeanSquare(samples)
	signalPower := signal * signal

	if signalPower == 0 {
		return 0
	}
	if noisePower == 0 {
		return 100
	}
	return 10 * math.Log10(signalPower/noisePower)
}

func rootMeanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) <= 1 {
		return 0
	}
	var count float64
	for i := 1; i < len(samples); i++ {
		if samples[i-1] == 0 || samples[i] == 0 {
			continue
		}
		if (samples[i-1] > 0) != (samples[i] > 0) {
			count++
		}
	}
	return count / float64(len(samples)-1)
}
