package defect

import "strings"

// defectTypeVocabulary maps raw survey identification strings (lowercased)
// to the enumerated taxonomy. Russian vendor vocabulary is included because
// the ILI contractors deliver reports in it.
var defectTypeVocabulary = map[string]DefectType{
	"коррозия":             TypeCorrosion,
	"corrosion":            TypeCorrosion,
	"metal loss":           TypeCorrosion,
	"сварной шов":          TypeWeldSeam,
	"weld seam":            TypeWeldSeam,
	"weld_seam":            TypeWeldSeam,
	"weld-seam anomaly":    TypeWeldSeam,
	"металлический объект": TypeMetalObject,
	"metal object":         TypeMetalObject,
	"metal_object":         TypeMetalObject,
}

// surfaceVocabulary maps raw surface codes to the enumeration. ВНШ / ВНТ are
// the vendor codes for the external bottom / top generatrix.
var surfaceVocabulary = map[string]SurfaceLocation{
	"внш":             SurfaceExternalBottom,
	"внт":             SurfaceExternalTop,
	"external_bottom": SurfaceExternalBottom,
	"external_top":    SurfaceExternalTop,
	"internal":        SurfaceInternal,
	"вну":             SurfaceInternal,
}

// LookupDefectType resolves a free-text identification string to the
// taxonomy. Unmapped strings yield TypeUnknown, never an error: a typo in the
// identification column must not cost the row.
func LookupDefectType(raw string) DefectType {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return TypeUnknown
	}
	if t, ok := defectTypeVocabulary[key]; ok {
		return t
	}
	return TypeUnknown
}

// LookupSurfaceLocation resolves a raw surface code with an unknown fallback.
func LookupSurfaceLocation(raw string) SurfaceLocation {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return SurfaceUnknown
	}
	if loc, ok := surfaceVocabulary[key]; ok {
		return loc
	}
	return SurfaceUnknown
}

// ValidDefectType reports whether t is a member of the taxonomy.
func ValidDefectType(t DefectType) bool {
	switch t {
	case TypeCorrosion, TypeWeldSeam, TypeMetalObject, TypeUnknown:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the ordered classes.
func ValidSeverity(s Severity) bool {
	return s.Rank() >= 0
}
