// Package catalog holds the classified defect index: the only persistent,
// queryable state of the pipeline. It supports concurrent read queries while
// an ingestion is in progress; an upsert is atomic from a reader's
// perspective: the primary entry and every secondary index move together
// under one write lock.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pipeline-integrity/defect"
)

// ErrInvalidFilter reports a query with an out-of-vocabulary filter value.
// Caller error; catalog state is never affected.
var ErrInvalidFilter = errors.New("invalid query filter")

// Filter selects defects by any combination of severity, type and segment.
// Nil fields match everything; set fields combine with AND semantics.
type Filter struct {
	Severity   *defect.Severity
	DefectType *defect.DefectType
	Segment    *int
}

// Stats aggregates the catalog contents.
type Stats struct {
	Total         int                         `json:"total"`
	BySeverity    map[defect.Severity]int     `json:"bySeverity"`
	ByType        map[defect.DefectType]int   `json:"byType"`
	BySegment     map[int]int                 `json:"bySegment"`
	SeverityShare map[defect.Severity]float64 `json:"severityShare"` // percent of total
}

type idSet map[string]struct{}

// Catalog maps defect ids to classified defects with secondary indexes by
// severity, defect type and segment number.
type Catalog struct {
	mu         sync.RWMutex
	byID       map[string]defect.ClassifiedDefect
	bySeverity map[defect.Severity]idSet
	byType     map[defect.DefectType]idSet
	bySegment  map[int]idSet
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		byID:       make(map[string]defect.ClassifiedDefect),
		bySeverity: make(map[defect.Severity]idSet),
		byType:     make(map[defect.DefectType]idSet),
		bySegment:  make(map[int]idSet),
	}
}

// Upsert inserts or replaces the entry keyed by the defect id. Replacing an
// entry removes its old secondary index memberships before adding the new
// ones; readers see either the old or the new version, never a mix.
func (c *Catalog) Upsert(d defect.ClassifiedDefect) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byID[d.DefectID]; ok {
		c.dropFromIndexes(old)
	}

	c.byID[d.DefectID] = d
	addToSet(c.bySeverity, d.Severity, d.DefectID)
	addToSet(c.byType, d.DefectType, d.DefectID)
	addToSet(c.bySegment, d.SegmentNumber, d.DefectID)
}

func (c *Catalog) dropFromIndexes(old defect.ClassifiedDefect) {
	dropFromSet(c.bySeverity, old.Severity, old.DefectID)
	dropFromSet(c.byType, old.DefectType, old.DefectID)
	dropFromSet(c.bySegment, old.SegmentNumber, old.DefectID)
}

// Get returns the entry for a defect id.
func (c *Catalog) Get(id string) (defect.ClassifiedDefect, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	return d, ok
}

// Len returns the number of catalogued defects.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Query returns the defects matching every set filter field, sorted by
// defect id so repeated calls on an unmodified catalog return the same order.
func (c *Catalog) Query(f Filter) ([]defect.ClassifiedDefect, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.candidateIDs(f)

	results := make([]defect.ClassifiedDefect, 0, len(ids))
	for _, id := range ids {
		d := c.byID[id]
		if f.Severity != nil && d.Severity != *f.Severity {
			continue
		}
		if f.DefectType != nil && d.DefectType != *f.DefectType {
			continue
		}
		if f.Segment != nil && d.SegmentNumber != *f.Segment {
			continue
		}
		results = append(results, d)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DefectID < results[j].DefectID
	})

	return results, nil
}

// candidateIDs picks the narrowest secondary index as the scan set; with no
// filters set, it is every id. Must be called with at least a read lock held.
func (c *Catalog) candidateIDs(f Filter) []string {
	var narrowest idSet
	haveIndex := false

	consider := func(set idSet) {
		if !haveIndex || len(set) < len(narrowest) {
			narrowest = set
			haveIndex = true
		}
	}

	if f.Severity != nil {
		consider(c.bySeverity[*f.Severity])
	}
	if f.DefectType != nil {
		consider(c.byType[*f.DefectType])
	}
	if f.Segment != nil {
		consider(c.bySegment[*f.Segment])
	}

	if !haveIndex {
		ids := make([]string, 0, len(c.byID))
		for id := range c.byID {
			ids = append(ids, id)
		}
		return ids
	}

	ids := make([]string, 0, len(narrowest))
	for id := range narrowest {
		ids = append(ids, id)
	}
	return ids
}

// Statistics returns aggregate counts per severity, type and segment, plus
// the share each severity represents of the total.
func (c *Catalog) Statistics() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Total:         len(c.byID),
		BySeverity:    make(map[defect.Severity]int),
		ByType:        make(map[defect.DefectType]int),
		BySegment:     make(map[int]int),
		SeverityShare: make(map[defect.Severity]float64),
	}

	for severity, set := range c.bySeverity {
		stats.BySeverity[severity] = len(set)
	}
	for defectType, set := range c.byType {
		stats.ByType[defectType] = len(set)
	}
	for segment, set := range c.bySegment {
		stats.BySegment[segment] = len(set)
	}

	if stats.Total > 0 {
		for severity, count := range stats.BySeverity {
			stats.SeverityShare[severity] = 100 * float64(count) / float64(stats.Total)
		}
	}

	return stats
}

func validateFilter(f Filter) error {
	if f.Severity != nil && !defect.ValidSeverity(*f.Severity) {
		return fmt.Errorf("%w: severity %q", ErrInvalidFilter, *f.Severity)
	}
	if f.DefectType != nil && !defect.ValidDefectType(*f.DefectType) {
		return fmt.Errorf("%w: defect type %q", ErrInvalidFilter, *f.DefectType)
	}
	if f.Segment != nil && *f.Segment < 0 {
		return fmt.Errorf("%w: segment %d", ErrInvalidFilter, *f.Segment)
	}
	return nil
}

func addToSet[K comparable](m map[K]idSet, key K, id string) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func dropFromSet[K comparable](m map[K]idSet, key K, id string) {
	if set, ok := m[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}
