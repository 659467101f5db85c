package defect

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// Raw row column names accepted by Normalize. Survey files and API payloads
// both use this vocabulary.
const (
	ColPipelineID           = "pipeline_id"
	ColSegmentNumber        = "segment_number"
	ColMeasurementNumber    = "measurement_number"
	ColMeasurementDistanceM = "measurement_distance_m"
	ColDefectType           = "defect_type"
	ColDepthPercent         = "depth_percent"
	ColLatitude             = "latitude"
	ColLongitude            = "longitude"
	ColAltitudeM            = "altitude_m"
	ColSurfaceLocation      = "surface_location"
	ColERFB31G              = "erf_b31g"
	ColLengthMM             = "length_mm"
	ColWidthMM              = "width_mm"
	ColWallThicknessMM      = "wall_thickness_mm"
	ColDepthMM              = "depth_mm"
	ColDistanceToWeldM      = "distance_to_weld_m"
	ColSourceFile           = "source_file"
)

// Normalize parses one raw survey row into a validated DefectRecord. It is a
// pure function: every validation outcome is returned, nothing is logged.
//
// Rules, in order:
//   - numeric coercion accepts comma decimal separators; a field that cannot
//     be coerced rejects the row (index and field name reported);
//   - defect type and surface location fall back to unknown, never reject;
//   - coordinates are validated strictly against WGS84 ranges (reject);
//   - depth_percent is clamped into [0,100] and the record flagged;
//   - the defect id is a deterministic hash, so re-processing the same source
//     data is idempotent.
func Normalize(row RawRow, index int) (DefectRecord, *RejectedRow) {
	reject := func(field, reason string) (DefectRecord, *RejectedRow) {
		return DefectRecord{}, &RejectedRow{Index: index, Field: field, Reason: reason}
	}

	segment, ok, err := coerceInt(row[ColSegmentNumber])
	if err != nil {
		return reject(ColSegmentNumber, err.Error())
	}
	if !ok {
		return reject(ColSegmentNumber, "missing required field")
	}
	if segment < 0 {
		return reject(ColSegmentNumber, "segment number must be >= 0")
	}

	distance, ok, err := coerceFloat(row[ColMeasurementDistanceM])
	if err != nil {
		return reject(ColMeasurementDistanceM, err.Error())
	}
	if !ok {
		return reject(ColMeasurementDistanceM, "missing required field")
	}
	if distance < 0 {
		return reject(ColMeasurementDistanceM, "distance must be non-negative")
	}

	lat, ok, err := coerceFloat(row[ColLatitude])
	if err != nil {
		return reject(ColLatitude, err.Error())
	}
	if !ok {
		return reject(ColLatitude, "missing required field")
	}
	if lat < -90 || lat > 90 {
		return reject(ColLatitude, fmt.Sprintf("latitude %v outside [-90,90]", lat))
	}

	lon, ok, err := coerceFloat(row[ColLongitude])
	if err != nil {
		return reject(ColLongitude, err.Error())
	}
	if !ok {
		return reject(ColLongitude, "missing required field")
	}
	if lon < -180 || lon > 180 {
		return reject(ColLongitude, fmt.Sprintf("longitude %v outside [-180,180]", lon))
	}

	defectType := LookupDefectType(coerceString(row[ColDefectType]))

	depth, depthPresent, err := coerceFloat(row[ColDepthPercent])
	if err != nil {
		return reject(ColDepthPercent, err.Error())
	}
	if !depthPresent {
		// Weld seams and metallic objects are reported without a wall-loss
		// measurement; their depth is zero by definition.
		switch defectType {
		case TypeWeldSeam, TypeMetalObject:
			depth = 0
		default:
			return reject(ColDepthPercent, "missing required field")
		}
	}
	clamped := false
	if depth < 0 {
		depth = 0
		clamped = true
	} else if depth > 100 {
		depth = 100
		clamped = true
	}

	measurementNumber, _, err := coerceInt(row[ColMeasurementNumber])
	if err != nil {
		return reject(ColMeasurementNumber, err.Error())
	}

	pipelineID := strings.TrimSpace(coerceString(row[ColPipelineID]))
	if pipelineID == "" {
		// Legacy survey exports carry no asset id; fall back to the
		// segment-derived trunk id used by the original reports.
		pipelineID = fmt.Sprintf("MT-%02d", segment)
	}

	rec := DefectRecord{
		DefectID:             DeterministicID(pipelineID, segment, distance),
		PipelineID:           pipelineID,
		SegmentNumber:        segment,
		MeasurementNumber:    measurementNumber,
		MeasurementDistanceM: distance,
		DefectType:           defectType,
		DepthPercent:         depth,
		Latitude:             lat,
		Longitude:            lon,
		SurfaceLocation:      LookupSurfaceLocation(coerceString(row[ColSurfaceLocation])),
		Clamped:              clamped,
		SourceFile:           coerceString(row[ColSourceFile]),
	}

	optional := []struct {
		col  string
		dest **float64
	}{
		{ColAltitudeM, &rec.AltitudeM},
		{ColERFB31G, &rec.ERFB31G},
		{ColLengthMM, &rec.LengthMM},
		{ColWidthMM, &rec.WidthMM},
		{ColWallThicknessMM, &rec.WallThicknessMM},
		{ColDepthMM, &rec.DepthMM},
		{ColDistanceToWeldM, &rec.DistanceToWeldM},
	}
	for _, opt := range optional {
		value, present, err := coerceFloat(row[opt.col])
		if err != nil {
			return reject(opt.col, err.Error())
		}
		if present {
			v := value
			*opt.dest = &v
		}
	}

	return rec, nil
}

// DeterministicID derives the defect id from the natural key so that
// re-ingesting the same source row always produces the same id. The distance
// is canonicalized to millimetre precision before hashing to keep ids stable
// across float formatting differences.
func DeterministicID(pipelineID string, segment int, distanceM float64) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%.3f", pipelineID, segment, distanceM)
	return fmt.Sprintf("dfct_%016x", h.Sum64())
}

// coerceFloat converts a raw cell to float64. The boolean reports presence:
// nil and blank strings are absent, not errors. String values accept the
// comma decimal separator used in the vendor exports.
func coerceFloat(v any) (float64, bool, error) {
	switch value := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, false, fmt.Errorf("non-finite number")
		}
		return value, true, nil
	case float32:
		return float64(value), true, nil
	case int:
		return float64(value), true, nil
	case int64:
		return float64(value), true, nil
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("not a number: %q", value.String())
		}
		return f, true, nil
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return 0, false, nil
		}
		s = strings.ReplaceAll(s, ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not a number: %q", value)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, fmt.Errorf("non-finite number: %q", value)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported value type %T", v)
	}
}

func coerceInt(v any) (int, bool, error) {
	f, ok, err := coerceFloat(v)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("not an integer: %v", f)
	}
	return int(f), true, nil
}

func coerceString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}
