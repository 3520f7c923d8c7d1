package audio

import "math"

// Band-limited interpolation with a Kaiser-windowed sinc kernel. The kernel is
// tabulated once per zero crossing at resamplePrecision points and linearly
// interpolated between them.
const (
	resampleZeros     = 64
	resamplePrecision = 512
	resampleRolloff   = 0.9475937167399596
	resampleBeta      = 14.769656459379492
)

var sincTable = buildSincTable()

func buildSincTable() []float64 {
	n := resampleZeros * resamplePrecision
	table := make([]float64, n+1)
	norm := besselI0(resampleBeta)
	for i := 0; i <= n; i++ {
		x := float64(i) / resamplePrecision
		r := float64(i) / float64(n)
		taper := besselI0(resampleBeta*math.Sqrt(1-r*r)) / norm
		table[i] = resampleRolloff * sinc(resampleRolloff*x) * taper
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// besselI0 is the zeroth-order modified Bessel function of the first kind.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 200; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-17 {
			break
		}
	}
	return sum
}

// kernel evaluates the tabulated filter at z zero crossings from its centre.
func kernel(z float64) float64 {
	pos := z * resamplePrecision
	i := int(pos)
	if i >= len(sincTable)-1 {
		return 0
	}
	frac := pos - float64(i)
	return sincTable[i] + frac*(sincTable[i+1]-sincTable[i])
}

// ResampledLength is the number of output samples produced from n input
// samples when converting from one rate to another: ceil(n * to / from).
func ResampledLength(n, from, to int) int {
	if n <= 0 || from <= 0 || to <= 0 {
		return 0
	}
	return int((int64(n)*int64(to) + int64(from) - 1) / int64(from))
}

// Resample converts x from one sample rate to another. When maxOut is
// non-negative, only the first maxOut output samples are computed; they are
// identical to the prefix of the unbounded result. Equal rates return a copy.
func Resample(x []float64, from, to, maxOut int) []float64 {
	n := ResampledLength(len(x), from, to)
	if maxOut >= 0 && n > maxOut {
		n = maxOut
	}
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if from == to {
		copy(out, x)
		return out
	}

	scale := math.Min(1, float64(to)/float64(from))
	step := float64(from) / float64(to)
	halfWidth := float64(resampleZeros) / scale
	last := len(x) - 1

	for m := range out {
		t := float64(m) * step
		lo := max(int(math.Ceil(t-halfWidth)), 0)
		hi := min(int(math.Floor(t+halfWidth)), last)

		var acc float64
		for k := lo; k <= hi; k++ {
			acc += x[k] * kernel(scale*math.Abs(t-float64(k)))
		}
		out[m] = scale * acc
	}
	return out
}
