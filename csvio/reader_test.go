package csvio

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"pipeline-integrity/defect"
)

// surveyLine renders one 20-column survey record with the given cells set.
func surveyLine(cells map[int]string) string {
	record := make([]string, 20)
	for col, value := range cells {
		record[col] = value
	}
	return strings.Join(record, ";")
}

func sampleLine() string {
	return surveyLine(map[int]string{
		colSegmentNumber:     "3",
		colMeasurementNumber: "17",
		colDistanceM:         "1234,56",
		colDistanceToWeldM:   "2,4",
		colIdentification:    "Коррозия",
		colWallThicknessMM:   "9,8",
		colLengthMM:          "120",
		colWidthMM:           "60",
		colMaxDepthPercent:   "42,5",
		colSurfaceLocation:   "ВНШ",
		colERFB31G:           "0,93",
		colLatitude:          "47,1",
		colLongitude:         "52,3",
		colAltitudeM:         "33",
	})
}

func headerLine() string {
	return surveyLine(map[int]string{0: "Номер секции", 2: "Дистанция, м"})
}

func TestReadSurveyPositionalMapping(t *testing.T) {
	t.Parallel()

	data := headerLine() + "\n" + sampleLine() + "\n"
	rows, err := ReadSurvey(strings.NewReader(data), "survey.csv")
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	row := rows[0]
	want := map[string]string{
		defect.ColSegmentNumber:        "3",
		defect.ColMeasurementNumber:    "17",
		defect.ColMeasurementDistanceM: "1234,56",
		defect.ColDistanceToWeldM:      "2,4",
		defect.ColDefectType:           "Коррозия",
		defect.ColWallThicknessMM:      "9,8",
		defect.ColLengthMM:             "120",
		defect.ColWidthMM:              "60",
		defect.ColDepthPercent:         "42,5",
		defect.ColSurfaceLocation:      "ВНШ",
		defect.ColERFB31G:              "0,93",
		defect.ColLatitude:             "47,1",
		defect.ColLongitude:            "52,3",
		defect.ColAltitudeM:            "33",
		defect.ColSourceFile:           "survey.csv",
	}
	for key, w := range want {
		got, ok := row[key]
		if !ok {
			t.Errorf("row missing %s", key)
			continue
		}
		if got != w {
			t.Errorf("row[%s] = %v, want %q", key, got, w)
		}
	}
}

func TestReadSurveyEmptyCellsOmitted(t *testing.T) {
	t.Parallel()

	line := surveyLine(map[int]string{
		colSegmentNumber: "3",
		colDistanceM:     "100",
		colLatitude:      "47,1",
		colLongitude:     "52,3",
	})
	rows, err := ReadSurvey(strings.NewReader(headerLine()+"\n"+line+"\n"), "")
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	row := rows[0]
	for _, key := range []string{defect.ColERFB31G, defect.ColLengthMM, defect.ColDepthPercent, defect.ColSourceFile} {
		if _, ok := row[key]; ok {
			t.Errorf("blank cell %s should be absent from the row, got %v", key, row[key])
		}
	}
}

func TestReadSurveySkipsBlankLines(t *testing.T) {
	t.Parallel()

	data := headerLine() + "\n" +
		sampleLine() + "\n" +
		strings.Repeat(";", 19) + "\n" + // all-blank record
		sampleLine() + "\n"

	rows, err := ReadSurvey(strings.NewReader(data), "")
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank record dropped)", len(rows))
	}
}

func TestReadSurveyUTF8BOM(t *testing.T) {
	t.Parallel()

	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(headerLine()+"\n"+sampleLine()+"\n")...)
	rows, err := ReadSurvey(bytes.NewReader(data), "")
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0][defect.ColSegmentNumber] != "3" {
		t.Errorf("segment = %v, want 3 (BOM must not corrupt the first column)", rows[0][defect.ColSegmentNumber])
	}
}

func TestReadSurveyWindows1251(t *testing.T) {
	t.Parallel()

	encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte(headerLine() + "\n" + sampleLine() + "\n"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	rows, err := ReadSurvey(bytes.NewReader(encoded), "legacy.csv")
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0][defect.ColDefectType] != "Коррозия" {
		t.Errorf("defect type = %v, want Коррозия decoded from cp1251", rows[0][defect.ColDefectType])
	}
	if rows[0][defect.ColSurfaceLocation] != "ВНШ" {
		t.Errorf("surface = %v, want ВНШ decoded from cp1251", rows[0][defect.ColSurfaceLocation])
	}
}

func TestReadSurveyEmptyInput(t *testing.T) {
	t.Parallel()

	rows, err := ReadSurvey(strings.NewReader(""), "")
	if err != nil {
		t.Fatalf("ReadSurvey: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows from empty input, want 0", len(rows))
	}
}
