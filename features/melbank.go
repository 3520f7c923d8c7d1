package features

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp      = 200.0 / 3
	melMinLogHz = 1000.0
	melMinLog   = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLog + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

func melToHz(mel float64) float64 {
	if mel >= melMinLog {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLog))
	}
	return melFSp * mel
}

// melFilter is one triangular band, non-zero on bins [start, start+len(weights)).
type melFilter struct {
	start   int
	weights []float64
}

// newMelBank builds nMels Slaney-normalised triangular filters spanning
// fMin..fMax over the nFFT/2+1 bins of a real FFT.
func newMelBank(sampleRate, nFFT, nMels int, fMin, fMax float64) []melFilter {
	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	lo, hi := hzToMel(fMin), hzToMel(fMax)
	melFreqs := make([]float64, nMels+2)
	for i := range melFreqs {
		melFreqs[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	bank := make([]melFilter, nMels)
	for i := 0; i < nMels; i++ {
		left, centre, right := melFreqs[i], melFreqs[i+1], melFreqs[i+2]
		norm := 2.0 / (right - left)

		row := make([]float64, bins)
		first, last := -1, -1
		for k, f := range fftFreqs {
			lower := (f - left) / (centre - left)
			upper := (right - f) / (right - centre)
			w := math.Max(0, math.Min(lower, upper))
			if w > 0 {
				row[k] = w * norm
				if first < 0 {
					first = k
				}
				last = k
			}
		}

		if first < 0 {
			bank[i] = melFilter{}
			continue
		}
		bank[i] = melFilter{start: first, weights: row[first : last+1]}
	}
	return bank
}

func (f melFilter) apply(power []float64) float64 {
	var sum float64
	for j, w := range f.weights {
		sum += w * power[f.start+j]
	}
	return sum
}

// dctMatrix returns the first n rows of the orthonormal DCT-II of size size.
func dctMatrix(n, size int) [][]float64 {
	m := make([][]float64, n)
	for k := range m {
		scale := math.Sqrt(2.0 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(size))
		}
		row := make([]float64, size)
		for j := range row {
			row[j] = scale * math.Cos(math.Pi*float64(k)*float64(2*j+1)/float64(2*size))
		}
		m[k] = row
	}
	return m
}
