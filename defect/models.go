package defect

import "time"

// DefectType is the enumerated anomaly taxonomy. Raw survey vocabulary is
// mapped through LookupDefectType; unrecognised values become TypeUnknown
// rather than rejecting the row.
type DefectType string

const (
	TypeCorrosion   DefectType = "corrosion"
	TypeWeldSeam    DefectType = "weld_seam"
	TypeMetalObject DefectType = "metal_object"
	TypeUnknown     DefectType = "unknown"
)

// SurfaceLocation identifies where on the pipe wall the anomaly sits.
type SurfaceLocation string

const (
	SurfaceExternalTop    SurfaceLocation = "external_top"
	SurfaceExternalBottom SurfaceLocation = "external_bottom"
	SurfaceInternal       SurfaceLocation = "internal"
	SurfaceUnknown        SurfaceLocation = "unknown"
)

// Severity is the ordered risk classification: normal < medium < high.
type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Severities lists all classes in ascending risk order.
var Severities = []Severity{SeverityNormal, SeverityMedium, SeverityHigh}

// Rank returns the ordinal position of the severity (normal=0 .. high=2),
// or -1 for an unknown value.
func (s Severity) Rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i
		}
	}
	return -1
}

// RawRow is one survey row as delivered by a source file or API payload:
// column name to raw value. Values may be strings (possibly with comma
// decimal separators), numbers, or absent.
type RawRow map[string]any

// DefectRecord is a validated, normalized inspection anomaly. Every stored
// record has passed geo validation and depth-range checks.
type DefectRecord struct {
	DefectID             string          `json:"defectId"`
	PipelineID           string          `json:"pipelineId"`
	SegmentNumber        int             `json:"segmentNumber"`
	MeasurementNumber    int             `json:"measurementNumber,omitempty"`
	MeasurementDistanceM float64         `json:"measurementDistanceM"`
	DefectType           DefectType      `json:"defectType"`
	DepthPercent         float64         `json:"depthPercent"`
	Latitude             float64         `json:"latitude"`
	Longitude            float64         `json:"longitude"`
	SurfaceLocation      SurfaceLocation `json:"surfaceLocation"`

	// ERFB31G is the estimated repair factor from the survey vendor when the
	// source row carried one; the feature deriver computes it otherwise.
	ERFB31G *float64 `json:"erfB31G,omitempty"`

	// Optional measurements. Nil means the survey did not record the
	// quantity; the feature deriver emits a sentinel and records it as
	// missing.
	AltitudeM       *float64 `json:"altitudeM,omitempty"`
	LengthMM        *float64 `json:"lengthMm,omitempty"`
	WidthMM         *float64 `json:"widthMm,omitempty"`
	WallThicknessMM *float64 `json:"wallThicknessMm,omitempty"`
	DepthMM         *float64 `json:"depthMm,omitempty"`
	DistanceToWeldM *float64 `json:"distanceToWeldM,omitempty"`

	// Clamped is set when depth_percent was truncated into [0,100].
	Clamped bool `json:"clamped,omitempty"`

	SourceFile string `json:"sourceFile,omitempty"`
}

// RejectedRow reports a row-level normalization failure. Rejections are
// collected per batch and never abort ingestion of the remaining rows.
type RejectedRow struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ClassifiedDefect pairs a record with its classification output. It is
// created once per ingested row and is immutable afterwards; re-ingestion of
// the same defect id replaces the whole entry (last write wins).
type ClassifiedDefect struct {
	DefectRecord

	Severity      Severity             `json:"severity"`
	Probability   float64              `json:"probability"`
	Probabilities map[Severity]float64 `json:"probabilities"`
	ModelVersion  string               `json:"modelVersion"`

	// Provenance of the derived feature vector.
	MissingFeatures []string `json:"missingFeatures,omitempty"`
	DefaultsApplied []string `json:"defaultsApplied,omitempty"`

	ClassifiedAt time.Time `json:"classifiedAt"`
}
