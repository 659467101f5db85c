package defect

// Severity Classifier
//
// The classifier wraps a pre-fitted, calibrated prototype model as an opaque
// inference capability. Each prototype is a labelled feature vector produced
// by the upstream training/calibration run (out of scope here); inference is
// a k-nearest lookup in z-score space with inverse-distance weighting, and
// the reported probability is the weight share of the winning class among the
// k neighbours.
//
// Contract:
//   - Determinism: neighbour ordering breaks distance ties by prototype id,
//     so identical inputs always yield identical outputs.
//   - Calibration: the artifact is calibrated upstream; this component only
//     applies it.
//   - Missing features: dimensions named in the missing set are masked out of
//     the distance on both the input and the prototypes (reduced-feature
//     path). The classifier never answers "unknown" for missing features.
//   - A vector whose shape differs from the model's is a programming-contract
//     violation between deriver and classifier: ErrInvalidFeatureVector.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultNeighbourCount is the k used when the artifact does not specify one.
const DefaultNeighbourCount = 5

var (
	// ErrModelUnavailable reports that the model artifact could not be
	// loaded. Fatal: the pipeline must not run without a model.
	ErrModelUnavailable = errors.New("classification model unavailable")

	// ErrInvalidFeatureVector reports a vector shape mismatch between the
	// deriver and the model. This must never occur for Deriver output.
	ErrInvalidFeatureVector = errors.New("invalid feature vector shape")
)

// Prototype is one labelled, calibrated point of the model artifact.
type Prototype struct {
	ID       string    `json:"id"`
	Severity Severity  `json:"severity"`
	Features []float64 `json:"features"`
	Source   string    `json:"source,omitempty"`
}

// modelArtifact is the on-disk model format.
type modelArtifact struct {
	Version    string      `json:"version"`
	Neighbours int         `json:"neighbours,omitempty"`
	Prototypes []Prototype `json:"prototypes"`
}

// Prediction is the classification output for one feature vector.
type Prediction struct {
	Severity      Severity             `json:"severity"`
	Probability   float64              `json:"probability"`
	Probabilities map[Severity]float64 `json:"probabilities"`
	Support       int                  `json:"support"`
	ModelVersion  string               `json:"modelVersion"`
}

// ModelStats exposes metadata about the loaded model.
type ModelStats struct {
	Version        string            `json:"version"`
	PrototypeCount int               `json:"prototypeCount"`
	FeatureCount   int               `json:"featureCount"`
	ClassCounts    []ModelClassCount `json:"classCounts"`
	UsingExample   bool              `json:"usingExample"`
}

// ModelClassCount summarises prototype density per severity class.
type ModelClassCount struct {
	Severity   Severity `json:"severity"`
	Prototypes int      `json:"prototypes"`
}

// Classifier performs k-nearest prototype lookups in the feature space.
type Classifier struct {
	mu           sync.RWMutex
	prototypes   []Prototype // scaled
	scaler       *FeatureScaler
	k            int
	version      string
	usingExample bool
}

type distancePair struct {
	index    int
	distance float64
}

// NewClassifierFromFile loads the model artifact from the supplied path. If
// the primary file is missing it falls back to the bundled example artifact
// ("prototypes.json" -> "prototypes.example.json"). Any failure to obtain a
// usable model wraps ErrModelUnavailable.
func NewClassifierFromFile(path string, k int) (*Classifier, error) {
	resolvedPath := filepath.Clean(path)
	data, err := os.ReadFile(resolvedPath)
	usingExample := false
	if err != nil {
		ext := filepath.Ext(resolvedPath)
		base := strings.TrimSuffix(resolvedPath, ext)
		fallbackPath := base + ".example" + ext
		data, err = os.ReadFile(fallbackPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load %s", ErrModelUnavailable, resolvedPath)
		}
		usingExample = true
		resolvedPath = fallbackPath
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s: %v", ErrModelUnavailable, resolvedPath, err)
	}

	if k <= 0 {
		k = artifact.Neighbours
	}

	c, err := NewClassifier(artifact.Version, artifact.Prototypes, k)
	if err != nil {
		return nil, err
	}
	c.usingExample = usingExample
	return c, nil
}

// NewClassifier builds a classifier from an in-memory prototype set. The
// prototypes are validated, a feature scaler is fit on the raw set, and the
// stored prototypes are kept in scaled space.
func NewClassifier(version string, prototypes []Prototype, k int) (*Classifier, error) {
	if len(prototypes) == 0 {
		return nil, fmt.Errorf("%w: artifact contains no prototypes", ErrModelUnavailable)
	}
	if k <= 0 {
		k = DefaultNeighbourCount
	}

	for _, proto := range prototypes {
		if proto.ID == "" {
			return nil, fmt.Errorf("%w: prototype missing id", ErrModelUnavailable)
		}
		if !ValidSeverity(proto.Severity) {
			return nil, fmt.Errorf("%w: prototype %s has invalid severity %q",
				ErrModelUnavailable, proto.ID, proto.Severity)
		}
		if len(proto.Features) != FeatureCount {
			return nil, fmt.Errorf("%w: prototype %s has %d features, expected %d (model must be regenerated)",
				ErrModelUnavailable, proto.ID, len(proto.Features), FeatureCount)
		}
	}

	scaler, err := NewFeatureScalerFromPrototypes(prototypes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	scaled := make([]Prototype, len(prototypes))
	for i, proto := range prototypes {
		copyProto := proto
		copyProto.Features = scaler.Transform(proto.Features)
		scaled[i] = copyProto
	}

	if k > len(scaled) {
		k = len(scaled)
	}

	return &Classifier{
		prototypes: scaled,
		scaler:     scaler,
		k:          k,
		version:    version,
	}, nil
}

// Classify maps a feature vector to a severity class with a calibrated
// probability. The missing set names features the deriver could not compute;
// their dimensions are excluded from the distance on both sides.
func (c *Classifier) Classify(features FeatureVector, missing []string) (Prediction, error) {
	if len(features) != FeatureCount {
		return Prediction{}, fmt.Errorf("%w: got %d dimensions, model expects %d",
			ErrInvalidFeatureVector, len(features), FeatureCount)
	}

	mask := make([]bool, FeatureCount)
	for _, name := range missing {
		if idx := FeatureIndex(name); idx >= 0 {
			mask[idx] = true
		}
	}

	c.mu.RLock()
	prototypes := c.prototypes
	scaler := c.scaler
	k := c.k
	version := c.version
	c.mu.RUnlock()

	scaled := scaler.Transform(features)

	distances := make([]distancePair, len(prototypes))
	for i := range prototypes {
		distances[i] = distancePair{index: i, distance: maskedDistance(scaled, prototypes[i].Features, mask)}
	}
	sort.Slice(distances, func(i, j int) bool {
		if distances[i].distance != distances[j].distance {
			return distances[i].distance < distances[j].distance
		}
		// Tie-break by prototype id so repeated runs are bit-identical.
		return prototypes[distances[i].index].ID < prototypes[distances[j].index].ID
	})

	weightSums := make(map[Severity]float64, len(Severities))
	supports := make(map[Severity]int, len(Severities))
	var totalWeight float64
	for idx := 0; idx < len(distances) && idx < k; idx++ {
		neighbour := distances[idx]
		weight := 1.0 / (neighbour.distance + 1e-9)
		severity := prototypes[neighbour.index].Severity
		weightSums[severity] += weight
		supports[severity]++
		totalWeight += weight
	}
	if totalWeight == 0 {
		return Prediction{}, fmt.Errorf("%w: degenerate neighbour weights", ErrInvalidFeatureVector)
	}

	probabilities := make(map[Severity]float64, len(Severities))
	best := SeverityNormal
	bestProb := -1.0
	for _, severity := range Severities {
		p := weightSums[severity] / totalWeight
		probabilities[severity] = p
		// On an exact tie the higher class wins: iteration is in ascending
		// risk order, so >= keeps the assessment conservative.
		if p >= bestProb {
			best = severity
			bestProb = p
		}
	}

	return Prediction{
		Severity:      best,
		Probability:   bestProb,
		Probabilities: probabilities,
		Support:       supports[best],
		ModelVersion:  version,
	}, nil
}

// Stats returns summary metadata about the loaded model.
func (c *Classifier) Stats() ModelStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[Severity]int)
	for _, proto := range c.prototypes {
		counts[proto.Severity]++
	}

	classCounts := make([]ModelClassCount, 0, len(counts))
	for _, severity := range Severities {
		if n, ok := counts[severity]; ok {
			classCounts = append(classCounts, ModelClassCount{Severity: severity, Prototypes: n})
		}
	}

	return ModelStats{
		Version:        c.version,
		PrototypeCount: len(c.prototypes),
		FeatureCount:   FeatureCount,
		ClassCounts:    classCounts,
		UsingExample:   c.usingExample,
	}
}

// Version returns the loaded model version string.
func (c *Classifier) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// maskedDistance computes the Euclidean distance over unmasked dimensions.
func maskedDistance(a, b []float64, mask []bool) float64 {
	var sum float64
	for i := range a {
		if mask[i] {
			continue
		}
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
