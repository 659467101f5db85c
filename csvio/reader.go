// Package csvio reads vendor ILI survey exports: semicolon-delimited CSV
// with positional columns, delivered in UTF-8 (optionally with a BOM) or
// Windows-1251. It only maps cells to named raw-row fields; all validation
// belongs to the normalizer.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"pipeline-integrity/defect"
)

// Survey export column positions (0-based). Columns not listed are blank or
// reserved in the vendor format.
const (
	colSegmentNumber     = 0
	colMeasurementNumber = 1
	colDistanceM         = 2
	colDistanceToWeldM   = 6
	colIdentification    = 9
	colWallThicknessMM   = 10
	colLengthMM          = 11
	colWidthMM           = 12
	colMaxDepthPercent   = 13
	colSurfaceLocation   = 14
	colERFB31G           = 15
	colLatitude          = 17
	colLongitude         = 18
	colAltitudeM         = 19
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadSurveyFile reads one survey export from disk.
func ReadSurveyFile(path string) ([]defect.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open survey file: %w", err)
	}
	defer f.Close()

	return ReadSurvey(f, path)
}

// ReadSurvey parses a survey export into raw rows. The first line is the
// header and is skipped. Fully blank lines are dropped; everything else is
// passed through for the normalizer to judge.
func ReadSurvey(r io.Reader, sourceFile string) ([]defect.RawRow, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read survey data: %w", err)
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		// Legacy exports are Windows-1251 encoded.
		decoded, err := charmap.Windows1251.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode survey data: %w", err)
		}
		raw = decoded
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse survey CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]defect.RawRow, 0, len(records)-1)
	for _, record := range records[1:] { // skip header
		if blankRecord(record) {
			continue
		}
		rows = append(rows, recordToRawRow(record, sourceFile))
	}

	return rows, nil
}

func recordToRawRow(record []string, sourceFile string) defect.RawRow {
	row := defect.RawRow{}
	if sourceFile != "" {
		row[defect.ColSourceFile] = sourceFile
	}

	set := func(col int, key string) {
		if col >= len(record) {
			return
		}
		value := strings.TrimSpace(record[col])
		if value == "" {
			return
		}
		row[key] = value
	}

	set(colSegmentNumber, defect.ColSegmentNumber)
	set(colMeasurementNumber, defect.ColMeasurementNumber)
	set(colDistanceM, defect.ColMeasurementDistanceM)
	set(colDistanceToWeldM, defect.ColDistanceToWeldM)
	set(colIdentification, defect.ColDefectType)
	set(colWallThicknessMM, defect.ColWallThicknessMM)
	set(colLengthMM, defect.ColLengthMM)
	set(colWidthMM, defect.ColWidthMM)
	set(colMaxDepthPercent, defect.ColDepthPercent)
	set(colSurfaceLocation, defect.ColSurfaceLocation)
	set(colERFB31G, defect.ColERFB31G)
	set(colLatitude, defect.ColLatitude)
	set(colLongitude, defect.ColLongitude)
	set(colAltitudeM, defect.ColAltitudeM)

	return row
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
