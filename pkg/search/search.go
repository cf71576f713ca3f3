// Package search builds resource listings from independent filter
// predicates. Each active filter produces its own row-key set with
// whatever joins it needs, and the result is the set intersection of
// all of them, so filters never collide on join clauses. Label filters
// are document-tree existence predicates evaluated against the current
// version payload of each live run.
package search

import (
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"

	"github.com/labtrail/protocol-registry/pkg/document"
	"github.com/labtrail/protocol-registry/pkg/store"
)

// Filters holds the optional listing parameters. Nil/empty fields are
// inactive; with no active filter a listing falls back to the single
// non-archived predicate.
type Filters struct {
	Protocol *int64
	Run      *int64
	Plate    string
	Reagent  string
	Sample   string
	Creator  string
	Archived bool
}

// Composer executes filtered listings over the versioned store.
type Composer struct {
	db *gorm.DB
}

// NewComposer creates a new Composer.
func NewComposer(db *gorm.DB) *Composer {
	return &Composer{db: db}
}

// runDocRow pairs a live run with its current version payload and the
// protocol version it was pinned to. The payload scans as raw text
// because this is an ad-hoc result struct, not a model; Doc is decoded
// after the query.
type runDocRow struct {
	RunID             int64
	RunVersionID      int64
	ProtocolVersionID int64
	RawData           string            `gorm:"column:data"`
	Doc               document.Document `gorm:"-"`
}

// liveRunDocs loads the current version document of every live run
// (optionally including archived ones).
func (c *Composer) liveRunDocs(includeArchived bool) ([]runDocRow, error) {
	query := c.db.Table("runs").
		Select("runs.id AS run_id", "run_versions.id AS run_version_id", "runs.protocol_version_id", "run_versions.data").
		Joins("JOIN run_versions ON run_versions.id = runs.current_version_id")
	if !includeArchived {
		query = query.Where("runs.is_deleted = ?", false)
	}
	var rows []runDocRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load run documents: %w", err)
	}
	for i := range rows {
		rows[i].Doc = document.Document{}
		if rows[i].RawData == "" {
			continue
		}
		if err := json.Unmarshal([]byte(rows[i].RawData), &rows[i].Doc); err != nil {
			return nil, fmt.Errorf("decode run document: %w", err)
		}
	}
	return rows, nil
}

// matchingRuns evaluates a document predicate over live run documents.
func (c *Composer) matchingRuns(includeArchived bool, predicate func(document.Document) bool) ([]runDocRow, error) {
	rows, err := c.liveRunDocs(includeArchived)
	if err != nil {
		return nil, err
	}
	var matched []runDocRow
	for _, row := range rows {
		if predicate(row.Doc) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// labelPredicates returns one document predicate per active label
// filter. Each contributes its own key set, so combined label filters
// intersect instead of collapsing into the first one.
func labelPredicates(f Filters) []func(document.Document) bool {
	var predicates []func(document.Document) bool
	if f.Plate != "" {
		label := f.Plate
		predicates = append(predicates, func(d document.Document) bool { return document.HasPlateLabel(d, label) })
	}
	if f.Reagent != "" {
		label := f.Reagent
		predicates = append(predicates, func(d document.Document) bool { return document.HasReagentLabel(d, label) })
	}
	if f.Sample != "" {
		label := f.Sample
		predicates = append(predicates, func(d document.Document) bool { return document.HasSampleLabel(d, label) })
	}
	return predicates
}

// intersect folds a list of key sets into their common subset.
func intersect[T comparable](sets []mapset.Set[T]) mapset.Set[T] {
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Intersect(s)
	}
	return result
}

// Protocols returns the protocol identities satisfying every active
// filter, newest first, deduplicated.
func (c *Composer) Protocols(f Filters) ([]store.Protocol, error) {
	var sets []mapset.Set[int64]

	if f.Protocol != nil {
		var ids []int64
		if err := c.baseProtocols(f.Archived).Where("id = ?", *f.Protocol).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("filter protocols by id: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}
	if f.Run != nil {
		var ids []int64
		err := c.baseProtocols(f.Archived).
			Joins("JOIN protocol_versions ON protocol_versions.protocol_id = protocols.id").
			Joins("JOIN runs ON runs.protocol_version_id = protocol_versions.id").
			Where("runs.id = ?", *f.Run).
			Pluck("protocols.id", &ids).Error
		if err != nil {
			return nil, fmt.Errorf("filter protocols by run: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}
	for _, predicate := range labelPredicates(f) {
		ids, err := c.protocolIDsByRunDoc(f.Archived, predicate)
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(ids...))
	}
	if f.Creator != "" {
		var ids []int64
		if err := c.baseProtocols(f.Archived).Where("created_by = ?", f.Creator).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("filter protocols by creator: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}

	if len(sets) == 0 {
		var ids []int64
		if err := c.baseProtocols(f.Archived).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list protocols: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}

	return c.loadProtocols(intersect(sets))
}

func (c *Composer) baseProtocols(includeArchived bool) *gorm.DB {
	query := c.db.Model(&store.Protocol{})
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	return query
}

// protocolIDsByRunDoc maps a run-document predicate back to the
// protocols those runs were instantiated from.
func (c *Composer) protocolIDsByRunDoc(includeArchived bool, predicate func(document.Document) bool) ([]int64, error) {
	matched, err := c.matchingRuns(includeArchived, predicate)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	versionIDs := make([]int64, 0, len(matched))
	for _, row := range matched {
		versionIDs = append(versionIDs, row.ProtocolVersionID)
	}
	var ids []int64
	if err := c.db.Model(&store.ProtocolVersion{}).Where("id IN ?", versionIDs).Pluck("protocol_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("resolve protocols from runs: %w", err)
	}
	return ids, nil
}

func (c *Composer) loadProtocols(ids mapset.Set[int64]) ([]store.Protocol, error) {
	if ids.Cardinality() == 0 {
		return nil, nil
	}
	var protocols []store.Protocol
	err := c.db.Where("id IN ?", ids.ToSlice()).
		Order("created_on DESC, id DESC").
		Find(&protocols).Error
	if err != nil {
		return nil, fmt.Errorf("load protocols: %w", err)
	}
	return protocols, nil
}

// Runs returns the run identities satisfying every active filter,
// newest first, deduplicated.
func (c *Composer) Runs(f Filters) ([]store.Run, error) {
	var sets []mapset.Set[int64]

	if f.Run != nil {
		var ids []int64
		if err := c.baseRuns(f.Archived).Where("id = ?", *f.Run).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("filter runs by id: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}
	if f.Protocol != nil {
		var ids []int64
		err := c.baseRuns(f.Archived).
			Joins("JOIN protocol_versions ON protocol_versions.id = runs.protocol_version_id").
			Where("protocol_versions.protocol_id = ?", *f.Protocol).
			Pluck("runs.id", &ids).Error
		if err != nil {
			return nil, fmt.Errorf("filter runs by protocol: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}
	for _, predicate := range labelPredicates(f) {
		matched, err := c.matchingRuns(f.Archived, predicate)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(matched))
		for _, row := range matched {
			ids = append(ids, row.RunID)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}
	if f.Creator != "" {
		var ids []int64
		if err := c.baseRuns(f.Archived).Where("created_by = ?", f.Creator).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("filter runs by creator: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}

	if len(sets) == 0 {
		var ids []int64
		if err := c.baseRuns(f.Archived).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		sets = append(sets, mapset.NewSet(ids...))
	}

	result := intersect(sets)
	if result.Cardinality() == 0 {
		return nil, nil
	}
	var runs []store.Run
	err := c.db.Where("id IN ?", result.ToSlice()).
		Order("created_on DESC, id DESC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	return runs, nil
}

func (c *Composer) baseRuns(includeArchived bool) *gorm.DB {
	query := c.db.Model(&store.Run{})
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	return query
}

// Samples returns the sample rows satisfying every active filter,
// newest first, deduplicated by composite key.
func (c *Composer) Samples(f Filters) ([]store.Sample, error) {
	var sets []mapset.Set[string]

	if f.Protocol != nil {
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB {
			return q.Joins("JOIN protocol_versions ON protocol_versions.id = samples.protocol_version_id").
				Where("protocol_versions.protocol_id = ?", *f.Protocol)
		})
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}
	if f.Run != nil {
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB {
			return q.Joins("JOIN run_versions ON run_versions.id = samples.run_version_id").
				Where("run_versions.run_id = ?", *f.Run)
		})
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}
	if f.Plate != "" {
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB {
			return q.Where("samples.plate_id = ?", f.Plate)
		})
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}
	if f.Reagent != "" {
		matched, err := c.matchingRuns(f.Archived, func(d document.Document) bool {
			return document.HasReagentLabel(d, f.Reagent)
		})
		if err != nil {
			return nil, err
		}
		versionIDs := make([]int64, 0, len(matched))
		for _, row := range matched {
			versionIDs = append(versionIDs, row.RunVersionID)
		}
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB {
			return q.Where("samples.run_version_id IN ?", versionIDs)
		})
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}
	if f.Sample != "" {
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB {
			return q.Where("samples.sample_id = ?", f.Sample)
		})
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}
	if f.Creator != "" {
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB {
			return q.Where("samples.created_by = ?", f.Creator)
		})
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}

	if len(sets) == 0 {
		keys, err := c.sampleKeys(f.Archived, func(q *gorm.DB) *gorm.DB { return q })
		if err != nil {
			return nil, err
		}
		sets = append(sets, mapset.NewSet(keys...))
	}

	result := intersect(sets)
	if result.Cardinality() == 0 {
		return nil, nil
	}

	all, err := c.loadSamples(f.Archived)
	if err != nil {
		return nil, err
	}
	var samples []store.Sample
	for _, sample := range all {
		if result.Contains(sampleRowKey(sample)) {
			samples = append(samples, sample)
		}
	}
	return samples, nil
}

// sampleKeys runs one filter's query shape and returns the matching
// composite keys.
func (c *Composer) sampleKeys(includeArchived bool, shape func(*gorm.DB) *gorm.DB) ([]string, error) {
	query := c.db.Model(&store.Sample{}).
		Select("samples.sample_id", "samples.plate_id", "samples.run_version_id", "samples.protocol_version_id")
	if !includeArchived {
		query = query.Where("samples.is_deleted = ?", false)
	}
	var rows []store.Sample
	if err := shape(query).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("filter samples: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, sampleRowKey(row))
	}
	return keys, nil
}

func (c *Composer) loadSamples(includeArchived bool) ([]store.Sample, error) {
	query := c.db.Order("created_on DESC, sample_id ASC")
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	var samples []store.Sample
	if err := query.Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	return samples, nil
}

func sampleRowKey(s store.Sample) string {
	return fmt.Sprintf("%s|%s|%d|%d", s.SampleID, s.PlateID, s.RunVersionID, s.ProtocolVersionID)
}
