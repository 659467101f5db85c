package report

import (
	"strings"
	"testing"

	"pipeline-integrity/catalog"
	"pipeline-integrity/defect"
)

func sampleStats() catalog.Stats {
	return catalog.Stats{
		Total: 10,
		BySeverity: map[defect.Severity]int{
			defect.SeverityNormal: 6,
			defect.SeverityMedium: 3,
			defect.SeverityHigh:   1,
		},
		ByType: map[defect.DefectType]int{
			defect.TypeCorrosion: 8,
			defect.TypeWeldSeam:  2,
		},
		BySegment: map[int]int{3: 4, 1: 6},
		SeverityShare: map[defect.Severity]float64{
			defect.SeverityNormal: 60,
			defect.SeverityMedium: 30,
			defect.SeverityHigh:   10,
		},
	}
}

func TestStatsPromptDeterministic(t *testing.T) {
	t.Parallel()

	first := StatsPrompt(sampleStats())
	for i := 0; i < 5; i++ {
		if again := StatsPrompt(sampleStats()); again != first {
			t.Fatalf("run %d produced a different prompt:\n%s\nvs\n%s", i, again, first)
		}
	}
}

func TestStatsPromptContents(t *testing.T) {
	t.Parallel()

	prompt := StatsPrompt(sampleStats())

	for _, fragment := range []string{
		"Total catalogued defects: 10",
		"high: 1 (10.0%)",
		"corrosion: 8",
		"segment 1: 6",
		"segment 3: 4",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("prompt missing %q:\n%s", fragment, prompt)
		}
	}

	// Segments must render in ascending order regardless of map iteration.
	if strings.Index(prompt, "segment 1:") > strings.Index(prompt, "segment 3:") {
		t.Error("segments not sorted ascending")
	}
}
