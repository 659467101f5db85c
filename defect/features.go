package defect

// Feature Derivation
//
// The deriver turns a validated DefectRecord into the fixed-shape numeric
// vector consumed by the severity classifier. The layout is frozen; the
// classifier validates it by length, and any change here must regenerate the
// model prototypes.
//
// Layout (index: name):
//
//	 0: depth_percent           wall-loss depth, percent of nominal wall
//	 1: erf_b31g                estimated repair factor (derived if absent)
//	 2: altitude_m              elevation of the measurement point
//	 3: latitude
//	 4: longitude
//	 5: normalized_distance     distance / pipeline length (raw distance when
//	                            the total length is unknown)
//	 6: length_mm               defect axial length
//	 7: width_mm                defect circumferential width
//	 8: wall_thickness_mm       nominal wall thickness at the joint
//	 9: distance_to_weld_m      axial distance to the nearest girth weld
//	10: defect_type_corrosion   one-hot taxonomy encoding
//	11: defect_type_weld_seam
//	12: defect_type_metal_object
//	13: defect_type_unknown
//	14: surface_external_bottom 1 when the anomaly sits on the external
//	                            bottom generatrix (vendor code ВНШ)
//
// Optional quantities the survey did not measure are emitted as the sentinel
// value 0 and named in Derivation.Missing, never fabricated. The classifier
// masks missing dimensions out of its distance computation.

// FeatureVector is a fixed-shape numeric descriptor of one defect.
type FeatureVector []float64

// FeatureCount is the frozen vector length.
const FeatureCount = 15

// FeatureNames lists the vector layout in index order.
var FeatureNames = []string{
	"depth_percent",
	"erf_b31g",
	"altitude_m",
	"latitude",
	"longitude",
	"normalized_distance",
	"length_mm",
	"width_mm",
	"wall_thickness_mm",
	"distance_to_weld_m",
	"defect_type_corrosion",
	"defect_type_weld_seam",
	"defect_type_metal_object",
	"defect_type_unknown",
	"surface_external_bottom",
}

// featureIndex resolves a feature name to its vector position.
var featureIndex = func() map[string]int {
	idx := make(map[string]int, len(FeatureNames))
	for i, name := range FeatureNames {
		idx[name] = i
	}
	return idx
}()

// FeatureIndex returns the vector position of a named feature, or -1.
func FeatureIndex(name string) int {
	if i, ok := featureIndex[name]; ok {
		return i
	}
	return -1
}

// Derivation carries the provenance of a derived vector: which dimensions
// hold sentinels, which documented defaults fed the B31G assessment, and the
// derived engineering quantities themselves.
type Derivation struct {
	Missing            []string
	Defaults           []string
	ERFB31G            float64
	NormalizedDistance float64
}

// Deriver computes feature vectors. PipelineLengths maps pipeline ids to
// total length in metres for distance normalization; entries are optional.
type Deriver struct {
	PipelineLengths map[string]float64
}

// NewDeriver returns a Deriver with an empty pipeline-length registry.
func NewDeriver() *Deriver {
	return &Deriver{PipelineLengths: map[string]float64{}}
}

// Derive computes the feature vector for a record. It is pure: the record is
// not mutated, defaults are reported rather than silently applied, and the
// output shape is always FeatureCount.
func (d *Deriver) Derive(rec DefectRecord) (FeatureVector, Derivation) {
	vec := make(FeatureVector, FeatureCount)
	var der Derivation

	vec[0] = rec.DepthPercent

	// ERF: prefer the vendor-computed ratio, otherwise run the modified B31G
	// assessment. Geometry the survey did not measure falls back to the
	// documented defaults, and every fallback is recorded.
	wallThickness := DefaultWallThicknessMM
	if rec.WallThicknessMM != nil {
		wallThickness = *rec.WallThicknessMM
	}
	axialLength := DefaultAxialLengthMM
	if rec.LengthMM != nil {
		axialLength = *rec.LengthMM
	}
	if rec.ERFB31G != nil {
		der.ERFB31G = *rec.ERFB31G
	} else {
		if rec.WallThicknessMM == nil {
			der.Defaults = append(der.Defaults, "wall_thickness_mm")
		}
		if rec.LengthMM == nil {
			der.Defaults = append(der.Defaults, "length_mm")
		}
		der.Defaults = append(der.Defaults, "erf_b31g")
		der.ERFB31G = ERFB31G(rec.DepthPercent, wallThickness, axialLength)
	}
	vec[1] = der.ERFB31G

	if rec.AltitudeM != nil {
		vec[2] = *rec.AltitudeM
	} else {
		der.Missing = append(der.Missing, "altitude_m")
	}
	vec[3] = rec.Latitude
	vec[4] = rec.Longitude

	// Distance along the line, normalized by the asset length when known.
	der.NormalizedDistance = rec.MeasurementDistanceM
	if total, ok := d.PipelineLengths[rec.PipelineID]; ok && total > 0 {
		der.NormalizedDistance = rec.MeasurementDistanceM / total
	}
	vec[5] = der.NormalizedDistance

	// Optional geometry: sentinel + missing marker when unmeasured.
	optional := []struct {
		name  string
		index int
		value *float64
	}{
		{"length_mm", 6, rec.LengthMM},
		{"width_mm", 7, rec.WidthMM},
		{"wall_thickness_mm", 8, rec.WallThicknessMM},
		{"distance_to_weld_m", 9, rec.DistanceToWeldM},
	}
	for _, opt := range optional {
		if opt.value == nil {
			der.Missing = append(der.Missing, opt.name)
			continue
		}
		vec[opt.index] = *opt.value
	}

	switch rec.DefectType {
	case TypeCorrosion:
		vec[10] = 1
	case TypeWeldSeam:
		vec[11] = 1
	case TypeMetalObject:
		vec[12] = 1
	default:
		vec[13] = 1
	}

	if rec.SurfaceLocation == SurfaceExternalBottom {
		vec[14] = 1
	}

	return vec, der
}
