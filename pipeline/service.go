// Package pipeline wires the normalize → derive → classify → catalog stages
// together and exposes the external interface consumed by the transport and
// persistence collaborators.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"pipeline-integrity/catalog"
	"pipeline-integrity/db"
	"pipeline-integrity/defect"
)

// ErrPersistence reports that a batch was classified and indexed in the
// catalog but the write-through store rejected it. The accompanying
// BatchResult is valid; callers must not blindly re-ingest.
var ErrPersistence = errors.New("defect store write failed")

// Service owns the classification pipeline and the catalog index. Ingestion
// is single-writer; catalog queries may run concurrently with it.
type Service struct {
	deriver    *defect.Deriver
	classifier *defect.Classifier
	catalog    *catalog.Catalog
	store      db.Client // optional write-through persistence
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables write-through persistence of classified defects.
func WithStore(store db.Client) Option {
	return func(s *Service) { s.store = store }
}

// WithPipelineLengths registers total pipeline lengths for distance
// normalization during feature derivation.
func WithPipelineLengths(lengths map[string]float64) Option {
	return func(s *Service) {
		for id, length := range lengths {
			s.deriver.PipelineLengths[id] = length
		}
	}
}

// New builds a Service around a loaded classifier.
func New(classifier *defect.Classifier, opts ...Option) *Service {
	s := &Service{
		deriver:    defect.NewDeriver(),
		classifier: classifier,
		catalog:    catalog.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BatchResult reports one ingestion run.
type BatchResult struct {
	BatchID        string               `json:"batchId"`
	InsertedCount  int                  `json:"insertedCount"`
	LastInsertedID string               `json:"lastInsertedId,omitempty"`
	Rejected       []defect.RejectedRow `json:"rejectedRows,omitempty"`
}

// IngestBatch runs the full pipeline over a batch of raw rows.
//
// Row-level failures are collected and never abort the batch. Batch-level
// failures (model unavailable, deriver/classifier contract violation) abort
// the whole call and leave the catalog unmodified: every row is classified
// before the first insert happens. Re-running a batch is safe (defect ids
// are deterministic and inserts are upserts), which is also the restart
// mechanism after an interruption.
func (s *Service) IngestBatch(rows []defect.RawRow) (BatchResult, error) {
	result := BatchResult{BatchID: uuid.NewString()}

	staged := make([]defect.ClassifiedDefect, 0, len(rows))
	for index, row := range rows {
		classified, rejected, err := s.classifyRow(row, index)
		if err != nil {
			return BatchResult{}, xerrors.New(fmt.Errorf("batch aborted at row %d: %w", index, err))
		}
		if rejected != nil {
			result.Rejected = append(result.Rejected, *rejected)
			continue
		}
		staged = append(staged, classified)
	}

	for _, d := range staged {
		s.catalog.Upsert(d)
		result.InsertedCount++
		result.LastInsertedID = d.DefectID
	}

	if s.store != nil && len(staged) > 0 {
		if err := s.store.StoreDefects(staged); err != nil {
			// The catalog already holds the batch; the populated result is
			// returned alongside the sentinel so callers can tell partial
			// success from a failed ingestion.
			return result, fmt.Errorf("%w: batch %s: %v", ErrPersistence, result.BatchID, err)
		}
	}

	return result, nil
}

// ClassifySingle predicts severity for one raw row without touching the
// catalog (the on-demand "predict" capability).
func (s *Service) ClassifySingle(row defect.RawRow) (defect.Prediction, *defect.RejectedRow, error) {
	classified, rejected, err := s.classifyRow(row, 0)
	if err != nil || rejected != nil {
		return defect.Prediction{}, rejected, err
	}
	return prediction(classified), nil, nil
}

// RowPrediction is the per-row outcome of a batch prediction: exactly one of
// Prediction and Rejected is set.
type RowPrediction struct {
	Index      int                 `json:"index"`
	Prediction *defect.Prediction  `json:"prediction,omitempty"`
	Rejected   *defect.RejectedRow `json:"rejected,omitempty"`
}

// ClassifyBatch predicts severity for a batch of raw rows without inserting
// anything into the catalog. Row-level rejections are reported per row and
// never abort the batch; a classifier failure aborts the whole call.
func (s *Service) ClassifyBatch(rows []defect.RawRow) ([]RowPrediction, error) {
	results := make([]RowPrediction, 0, len(rows))
	for index, row := range rows {
		classified, rejected, err := s.classifyRow(row, index)
		if err != nil {
			return nil, xerrors.New(fmt.Errorf("batch prediction aborted at row %d: %w", index, err))
		}
		if rejected != nil {
			results = append(results, RowPrediction{Index: index, Rejected: rejected})
			continue
		}
		p := prediction(classified)
		results = append(results, RowPrediction{Index: index, Prediction: &p})
	}
	return results, nil
}

func prediction(classified defect.ClassifiedDefect) defect.Prediction {
	return defect.Prediction{
		Severity:      classified.Severity,
		Probability:   classified.Probability,
		Probabilities: classified.Probabilities,
		ModelVersion:  classified.ModelVersion,
	}
}

// classifyRow runs normalize → derive → classify for one row. A rejection is
// a row-level outcome; a returned error is batch-fatal.
func (s *Service) classifyRow(row defect.RawRow, index int) (defect.ClassifiedDefect, *defect.RejectedRow, error) {
	rec, rejected := defect.Normalize(row, index)
	if rejected != nil {
		return defect.ClassifiedDefect{}, rejected, nil
	}

	features, derivation := s.deriver.Derive(rec)
	prediction, err := s.classifier.Classify(features, derivation.Missing)
	if err != nil {
		return defect.ClassifiedDefect{}, nil, err
	}

	if rec.ERFB31G == nil {
		erf := derivation.ERFB31G
		rec.ERFB31G = &erf
	}

	return defect.ClassifiedDefect{
		DefectRecord:    rec,
		Severity:        prediction.Severity,
		Probability:     prediction.Probability,
		Probabilities:   prediction.Probabilities,
		ModelVersion:    prediction.ModelVersion,
		MissingFeatures: derivation.Missing,
		DefaultsApplied: derivation.Defaults,
		ClassifiedAt:    time.Now().UTC(),
	}, nil, nil
}

// Query answers multi-criteria catalog lookups.
func (s *Service) Query(f catalog.Filter) ([]defect.ClassifiedDefect, error) {
	return s.catalog.Query(f)
}

// Statistics returns the catalog aggregates.
func (s *Service) Statistics() catalog.Stats {
	return s.catalog.Statistics()
}

// ModelInfo exposes metadata about the loaded classification model.
func (s *Service) ModelInfo() defect.ModelStats {
	return s.classifier.Stats()
}
