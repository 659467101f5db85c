package defect

import (
	"errors"
	"math"
)

// FeatureScaler standardizes features using z-score normalization so that no
// single dimension (latitude in degrees vs depth in percent vs distance in
// metres) dominates the distance metric. Each dimension is transformed to
// mean=0, std=1 using statistics computed from the model prototypes.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// NewFeatureScalerFromPrototypes computes scaling parameters from the raw
// (unscaled) prototype set.
func NewFeatureScalerFromPrototypes(prototypes []Prototype) (*FeatureScaler, error) {
	if len(prototypes) == 0 {
		return nil, errors.New("no prototypes provided")
	}

	featureCount := len(prototypes[0].Features)
	if featureCount == 0 {
		return nil, errors.New("prototypes have no features")
	}

	mean := make([]float64, featureCount)
	for _, proto := range prototypes {
		if len(proto.Features) != featureCount {
			return nil, errors.New("inconsistent feature dimensions")
		}
		for i, val := range proto.Features {
			mean[i] += val
		}
	}
	for i := range mean {
		mean[i] /= float64(len(prototypes))
	}

	stddev := make([]float64, featureCount)
	for _, proto := range prototypes {
		for i, val := range proto.Features {
			diff := val - mean[i]
			stddev[i] += diff * diff
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(prototypes)))
		// Constant dimensions (one-hot columns in a single-class artifact)
		// must not divide by zero.
		if stddev[i] < 1e-10 {
			stddev[i] = 1.0
		}
	}

	return &FeatureScaler{Mean: mean, Stddev: stddev}, nil
}

// Transform applies z-score standardization to a feature vector. The input
// is not mutated.
func (fs *FeatureScaler) Transform(features []float64) []float64 {
	if len(features) != len(fs.Mean) {
		return features
	}

	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - fs.Mean[i]) / fs.Stddev[i]
	}

	return scaled
}
