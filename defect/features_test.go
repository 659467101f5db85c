package defect

import (
	"math"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func fullRecord() DefectRecord {
	return DefectRecord{
		DefectID:             "dfct_test",
		PipelineID:           "MT-03",
		SegmentNumber:        3,
		MeasurementDistanceM: 1500,
		DefectType:           TypeCorrosion,
		DepthPercent:         40,
		Latitude:             47.1,
		Longitude:            52.3,
		SurfaceLocation:      SurfaceExternalBottom,
		AltitudeM:            floatPtr(33),
		ERFB31G:              floatPtr(0.95),
		LengthMM:             floatPtr(120),
		WidthMM:              floatPtr(60),
		WallThicknessMM:      floatPtr(9.8),
		DistanceToWeldM:      floatPtr(2.4),
	}
}

func TestDeriveLayout(t *testing.T) {
	t.Parallel()

	d := NewDeriver()
	vec, der := d.Derive(fullRecord())

	if len(vec) != FeatureCount {
		t.Fatalf("vector length = %d, want %d", len(vec), FeatureCount)
	}
	if len(der.Missing) != 0 {
		t.Errorf("fully measured record reported missing features: %v", der.Missing)
	}
	if len(der.Defaults) != 0 {
		t.Errorf("vendor ERF present but defaults reported: %v", der.Defaults)
	}

	want := map[int]float64{
		0:  40,   // depth_percent
		1:  0.95, // erf_b31g (vendor value)
		2:  33,   // altitude_m
		3:  47.1, // latitude
		4:  52.3, // longitude
		5:  1500, // raw distance (no pipeline length registered)
		6:  120,  // length_mm
		7:  60,   // width_mm
		8:  9.8,  // wall_thickness_mm
		9:  2.4,  // distance_to_weld_m
		10: 1,    // defect_type_corrosion
		11: 0,
		12: 0,
		13: 0,
		14: 1, // surface_external_bottom
	}
	for idx, w := range want {
		if vec[idx] != w {
			t.Errorf("vec[%d] (%s) = %v, want %v", idx, FeatureNames[idx], vec[idx], w)
		}
	}
}

func TestDeriveDefaultsAndMissing(t *testing.T) {
	t.Parallel()

	rec := fullRecord()
	rec.ERFB31G = nil
	rec.AltitudeM = nil
	rec.LengthMM = nil
	rec.WidthMM = nil
	rec.WallThicknessMM = nil
	rec.DistanceToWeldM = nil

	d := NewDeriver()
	vec, der := d.Derive(rec)

	wantDefaults := []string{"wall_thickness_mm", "length_mm", "erf_b31g"}
	if len(der.Defaults) != len(wantDefaults) {
		t.Fatalf("defaults = %v, want %v", der.Defaults, wantDefaults)
	}
	for i, name := range wantDefaults {
		if der.Defaults[i] != name {
			t.Errorf("defaults[%d] = %q, want %q", i, der.Defaults[i], name)
		}
	}

	wantMissing := []string{"altitude_m", "length_mm", "width_mm", "wall_thickness_mm", "distance_to_weld_m"}
	if len(der.Missing) != len(wantMissing) {
		t.Fatalf("missing = %v, want %v", der.Missing, wantMissing)
	}
	for i, name := range wantMissing {
		if der.Missing[i] != name {
			t.Errorf("missing[%d] = %q, want %q", i, der.Missing[i], name)
		}
	}

	// Unmeasured geometry is a sentinel in the vector, never fabricated.
	for _, name := range wantMissing {
		if idx := FeatureIndex(name); vec[idx] != 0 {
			t.Errorf("vec[%s] = %v, want sentinel 0", name, vec[idx])
		}
	}

	wantERF := ERFB31G(rec.DepthPercent, DefaultWallThicknessMM, DefaultAxialLengthMM)
	if vec[1] != wantERF {
		t.Errorf("derived erf = %v, want %v", vec[1], wantERF)
	}
	if der.ERFB31G != wantERF {
		t.Errorf("derivation erf = %v, want %v", der.ERFB31G, wantERF)
	}
}

func TestDeriveNormalizedDistance(t *testing.T) {
	t.Parallel()

	rec := fullRecord()
	d := NewDeriver()
	d.PipelineLengths["MT-03"] = 3000

	vec, der := d.Derive(rec)
	if vec[5] != 0.5 {
		t.Errorf("normalized distance = %v, want 0.5", vec[5])
	}
	if der.NormalizedDistance != 0.5 {
		t.Errorf("derivation distance = %v, want 0.5", der.NormalizedDistance)
	}
}

func TestDeriveOneHotEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		defectType DefectType
		hotIndex   int
	}{
		{TypeCorrosion, 10},
		{TypeWeldSeam, 11},
		{TypeMetalObject, 12},
		{TypeUnknown, 13},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.defectType), func(t *testing.T) {
			t.Parallel()
			rec := fullRecord()
			rec.DefectType = tc.defectType
			vec, _ := NewDeriver().Derive(rec)
			for idx := 10; idx <= 13; idx++ {
				want := 0.0
				if idx == tc.hotIndex {
					want = 1.0
				}
				if vec[idx] != want {
					t.Errorf("vec[%d] = %v, want %v", idx, vec[idx], want)
				}
			}
		})
	}
}

func TestERFB31GMonotonicInDepth(t *testing.T) {
	t.Parallel()

	prev := 0.0
	for depth := 0.0; depth <= 95; depth += 5 {
		erf := ERFB31G(depth, DefaultWallThicknessMM, DefaultAxialLengthMM)
		if math.IsNaN(erf) || erf <= 0 {
			t.Fatalf("ERF(%v) = %v, want positive finite", depth, erf)
		}
		if erf < prev {
			t.Fatalf("ERF decreased at depth %v: %v < %v", depth, erf, prev)
		}
		prev = erf
	}
}

func TestERFB31GRepairThreshold(t *testing.T) {
	t.Parallel()

	shallow := ERFB31G(10, DefaultWallThicknessMM, DefaultAxialLengthMM)
	if shallow >= 1 {
		t.Errorf("10%% wall loss should not require repair, ERF = %v", shallow)
	}

	deep := ERFB31G(80, DefaultWallThicknessMM, DefaultAxialLengthMM)
	if deep < 1 {
		t.Errorf("80%% wall loss should require repair, ERF = %v", deep)
	}
}

func TestERFB31GDegenerateGeometry(t *testing.T) {
	t.Parallel()

	if erf := ERFB31G(40, 0, 100); erf != 0 {
		t.Errorf("zero wall thickness: ERF = %v, want 0", erf)
	}
}

func TestFeatureIndex(t *testing.T) {
	t.Parallel()

	for i, name := range FeatureNames {
		if FeatureIndex(name) != i {
			t.Errorf("FeatureIndex(%q) = %d, want %d", name, FeatureIndex(name), i)
		}
	}
	if FeatureIndex("nonexistent") != -1 {
		t.Error("unknown feature name should resolve to -1")
	}
}
