package pipeline

import (
	"errors"
	"testing"

	"pipeline-integrity/catalog"
	"pipeline-integrity/defect"
)

// testClassifier builds a classifier over synthetic prototypes that vary only
// in the depth dimension: shallow wall loss is normal, mid-range medium,
// deep high.
func testClassifier(t *testing.T) *defect.Classifier {
	t.Helper()

	proto := func(id string, severity defect.Severity, depth float64) defect.Prototype {
		features := make([]float64, defect.FeatureCount)
		features[0] = depth
		return defect.Prototype{ID: id, Severity: severity, Features: features}
	}

	c, err := defect.NewClassifier("svc-test-v1", []defect.Prototype{
		proto("n1", defect.SeverityNormal, 5),
		proto("n2", defect.SeverityNormal, 10),
		proto("n3", defect.SeverityNormal, 15),
		proto("m1", defect.SeverityMedium, 35),
		proto("m2", defect.SeverityMedium, 40),
		proto("m3", defect.SeverityMedium, 45),
		proto("h1", defect.SeverityHigh, 70),
		proto("h2", defect.SeverityHigh, 80),
		proto("h3", defect.SeverityHigh, 90),
	}, 3)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func surveyRow(segment int, distance, depth string) defect.RawRow {
	return defect.RawRow{
		defect.ColSegmentNumber:        segment,
		defect.ColMeasurementDistanceM: distance,
		defect.ColDefectType:           "коррозия",
		defect.ColDepthPercent:         depth,
		defect.ColLatitude:             "47,1",
		defect.ColLongitude:            "52,3",
		defect.ColSurfaceLocation:      "ВНШ",
	}
}

func TestIngestBatch(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))

	rows := []defect.RawRow{
		surveyRow(1, "100,0", "8"),
		surveyRow(1, "250,5", "42"),
		surveyRow(2, "730,0", "85"),
	}

	result, err := service.IngestBatch(rows)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if result.BatchID == "" {
		t.Error("batch id not assigned")
	}
	if result.InsertedCount != 3 {
		t.Fatalf("inserted = %d, want 3", result.InsertedCount)
	}
	if len(result.Rejected) != 0 {
		t.Fatalf("rejected = %v, want none", result.Rejected)
	}

	stats := service.Statistics()
	if stats.Total != 3 {
		t.Fatalf("catalog total = %d, want 3", stats.Total)
	}
	want := map[defect.Severity]int{
		defect.SeverityNormal: 1,
		defect.SeverityMedium: 1,
		defect.SeverityHigh:   1,
	}
	for severity, count := range want {
		if stats.BySeverity[severity] != count {
			t.Errorf("BySeverity[%s] = %d, want %d", severity, stats.BySeverity[severity], count)
		}
	}
}

func TestIngestBatchCollectsRejections(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))

	bad := surveyRow(1, "250,5", "42")
	bad[defect.ColLatitude] = "200"

	rows := []defect.RawRow{
		surveyRow(1, "100,0", "8"),
		bad,
		surveyRow(2, "730,0", "85"),
	}

	result, err := service.IngestBatch(rows)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if result.InsertedCount != 2 {
		t.Errorf("inserted = %d, want 2 (bad row skipped, rest processed)", result.InsertedCount)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("rejected = %v, want exactly one", result.Rejected)
	}
	if result.Rejected[0].Index != 1 || result.Rejected[0].Field != defect.ColLatitude {
		t.Errorf("rejection = %+v, want index 1 field latitude", result.Rejected[0])
	}
}

func TestIngestBatchIdempotent(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))
	rows := []defect.RawRow{surveyRow(1, "100,0", "8")}

	first, err := service.IngestBatch(rows)
	if err != nil {
		t.Fatalf("first IngestBatch: %v", err)
	}
	second, err := service.IngestBatch(rows)
	if err != nil {
		t.Fatalf("second IngestBatch: %v", err)
	}

	if first.LastInsertedID != second.LastInsertedID {
		t.Errorf("defect ids differ across runs: %q vs %q", first.LastInsertedID, second.LastInsertedID)
	}
	if total := service.Statistics().Total; total != 1 {
		t.Errorf("catalog total = %d after re-ingestion, want 1", total)
	}
}

func TestClassifySingleDoesNotTouchCatalog(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))

	prediction, rejected, err := service.ClassifySingle(surveyRow(1, "100,0", "82"))
	if err != nil {
		t.Fatalf("ClassifySingle: %v", err)
	}
	if rejected != nil {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
	if prediction.Severity != defect.SeverityHigh {
		t.Errorf("severity = %q, want high", prediction.Severity)
	}
	if prediction.ModelVersion != "svc-test-v1" {
		t.Errorf("model version = %q, want svc-test-v1", prediction.ModelVersion)
	}

	if total := service.Statistics().Total; total != 0 {
		t.Errorf("catalog total = %d after ClassifySingle, want 0", total)
	}
}

func TestClassifyBatch(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))

	bad := surveyRow(1, "250,5", "42")
	bad[defect.ColLatitude] = "200"

	results, err := service.ClassifyBatch([]defect.RawRow{
		surveyRow(1, "100,0", "8"),
		bad,
		surveyRow(2, "730,0", "85"),
	})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per input row", len(results))
	}

	if results[0].Prediction == nil || results[0].Prediction.Severity != defect.SeverityNormal {
		t.Errorf("row 0 = %+v, want normal prediction", results[0])
	}
	if results[1].Rejected == nil || results[1].Rejected.Field != defect.ColLatitude {
		t.Errorf("row 1 = %+v, want latitude rejection", results[1])
	}
	if results[1].Prediction != nil {
		t.Error("rejected row must not carry a prediction")
	}
	if results[2].Prediction == nil || results[2].Prediction.Severity != defect.SeverityHigh {
		t.Errorf("row 2 = %+v, want high prediction", results[2])
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d, want %d", i, r.Index, i)
		}
	}

	if total := service.Statistics().Total; total != 0 {
		t.Errorf("catalog total = %d after ClassifyBatch, want 0", total)
	}
}

func TestClassifySingleRejection(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))

	row := surveyRow(1, "100,0", "8")
	row[defect.ColLongitude] = "999"

	_, rejected, err := service.ClassifySingle(row)
	if err != nil {
		t.Fatalf("ClassifySingle: %v", err)
	}
	if rejected == nil {
		t.Fatal("expected rejection for invalid longitude")
	}
	if rejected.Field != defect.ColLongitude {
		t.Errorf("rejected field = %q, want longitude", rejected.Field)
	}
}

func TestQueryThroughService(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t))
	if _, err := service.IngestBatch([]defect.RawRow{
		surveyRow(1, "100,0", "8"),
		surveyRow(2, "730,0", "85"),
	}); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	high := defect.SeverityHigh
	results, err := service.Query(catalog.Filter{Severity: &high})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d high defects, want 1", len(results))
	}
	if results[0].SegmentNumber != 2 {
		t.Errorf("segment = %d, want 2", results[0].SegmentNumber)
	}
	if results[0].ERFB31G == nil {
		t.Error("derived ERF not backfilled onto the stored record")
	}
	if len(results[0].DefaultsApplied) == 0 {
		t.Error("defaults provenance missing on record classified without geometry")
	}

	invalid := defect.Severity("bogus")
	if _, err := service.Query(catalog.Filter{Severity: &invalid}); err == nil {
		t.Error("invalid filter accepted")
	}
}

// failingStore rejects every write; reads are empty.
type failingStore struct{}

func (failingStore) Close() error { return nil }
func (failingStore) StoreDefect(*defect.ClassifiedDefect) error {
	return errors.New("disk full")
}
func (failingStore) StoreDefects([]defect.ClassifiedDefect) error {
	return errors.New("disk full")
}
func (failingStore) GetDefect(string) (defect.ClassifiedDefect, bool, error) {
	return defect.ClassifiedDefect{}, false, nil
}
func (failingStore) GetAllDefects() ([]defect.ClassifiedDefect, error) { return nil, nil }
func (failingStore) TotalDefects() (int, error)                        { return 0, nil }
func (failingStore) DeleteDefect(string) error                         { return nil }

func TestIngestBatchPersistenceFailure(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t), WithStore(failingStore{}))

	result, err := service.IngestBatch([]defect.RawRow{
		surveyRow(1, "100,0", "8"),
		surveyRow(2, "730,0", "85"),
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	// Partial success: the catalog holds the batch and the result says so.
	if result.InsertedCount != 2 {
		t.Errorf("inserted = %d, want 2 alongside the persistence error", result.InsertedCount)
	}
	if result.LastInsertedID == "" {
		t.Error("last inserted id missing from the partial-success result")
	}
	if total := service.Statistics().Total; total != 2 {
		t.Errorf("catalog total = %d, want 2 (index updated before the store write)", total)
	}
}

func TestWithPipelineLengths(t *testing.T) {
	t.Parallel()

	service := New(testClassifier(t), WithPipelineLengths(map[string]float64{"MT-01": 2000}))
	if _, err := service.IngestBatch([]defect.RawRow{surveyRow(1, "1000,0", "8")}); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if total := service.Statistics().Total; total != 1 {
		t.Fatalf("catalog total = %d, want 1", total)
	}
}
