package classifier

import (
	"errors"
	"math"
)

// FeatureScaler standardizes vectors using z-score normalization fitted on a
// reference set. Each dimension is transformed to mean 0 and std 1.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// NewFeatureScaler computes scaling parameters from vectors of equal length.
func NewFeatureScaler(vectors [][]float64) (*FeatureScaler, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors provided")
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, errors.New("vectors are empty")
	}

	mean := make([]float64, dims)
	for _, v := range vectors {
		if len(v) != dims {
			return nil, errors.New("inconsistent vector dimensions")
		}
		for i, val := range v {
			mean[i] += val
		}
	}
	for i := range mean {
		mean[i] /= float64(len(vectors))
	}

	stddev := make([]float64, dims)
	for _, v := range vectors {
		for i, val := range v {
			diff := val - mean[i]
			stddev[i] += diff * diff
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(vectors)))
		// constant dimensions pass through unscaled
		if stddev[i] < 1e-10 {
			stddev[i] = 1.0
		}
	}

	return &FeatureScaler{Mean: mean, Stddev: stddev}, nil
}

// Transform returns a standardized copy of v. Vectors of the wrong length are
// returned unchanged.
func (fs *FeatureScaler) Transform(v []float64) []float64 {
	if len(v) != len(fs.Mean) {
		return v
	}

	scaled := make([]float64, len(v))
	for i, val := range v {
		scaled[i] = (val - fs.Mean[i]) / fs.Stddev[i]
	}
	return scaled
}

// NormaliseVectorInPlace scales v to unit L2 length. Zero vectors are left as is.
func NormaliseVectorInPlace(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
