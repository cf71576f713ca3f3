package store

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// SampleKey is the composite key identifying one projected sample.
type SampleKey struct {
	SampleID          string
	PlateID           string
	RunVersionID      int64
	ProtocolVersionID int64
}

// SampleStore provides upsert-style CRUD for projected samples. Samples
// are derived rows: the projection engine recomputes them from run
// documents and merges them in by composite key.
type SampleStore struct {
	db     *gorm.DB
	users  *UserStore
	logger *slog.Logger
}

// NewSampleStore creates a new SampleStore.
func NewSampleStore(db *gorm.DB, users *UserStore, logger *slog.Logger) *SampleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleStore{db: db, users: users, logger: logger}
}

func (s *SampleStore) byKey(db *gorm.DB, key SampleKey) *gorm.DB {
	return db.Where(
		"sample_id = ? AND plate_id = ? AND run_version_id = ? AND protocol_version_id = ?",
		key.SampleID, key.PlateID, key.RunVersionID, key.ProtocolVersionID,
	)
}

// Upsert merges a projected payload against the composite key. A new
// identity gets a first version; an existing identity gets a new
// version only when the payload actually differs, so re-running the
// projection for the same run version is idempotent. Reports whether a
// row was written.
func (s *SampleStore) Upsert(key SampleKey, payload document.Document, owner string, stamp Stamp) (*Sample, bool, error) {
	var existing Sample
	err := s.byKey(s.db, key).First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, false, fmt.Errorf("get sample: %w", err)
	}

	stripped := document.StripMetadata(payload)

	if err == gorm.ErrRecordNotFound {
		sample := &Sample{
			SampleID:          key.SampleID,
			PlateID:           key.PlateID,
			RunVersionID:      key.RunVersionID,
			ProtocolVersionID: key.ProtocolVersionID,
			CreatedBy:         owner,
		}
		version := s.newVersion(key, stripped, owner, stamp)
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(sample).Error; err != nil {
				return fmt.Errorf("create sample: %w", err)
			}
			if err := tx.Create(version).Error; err != nil {
				return fmt.Errorf("create sample version: %w", err)
			}
			return s.byKey(tx.Model(&Sample{}), key).Update("current_version_id", version.ID).Error
		})
		if err != nil {
			return nil, false, err
		}
		sample.CurrentVersionID = &version.ID
		return sample, true, nil
	}

	current, err := s.CurrentVersion(&existing)
	if err != nil {
		return nil, false, err
	}
	if current != nil && document.DeepHash(map[string]any(current.Data)) == document.DeepHash(map[string]any(stripped)) {
		return &existing, false, nil
	}

	version := s.newVersion(key, stripped, owner, stamp)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create sample version: %w", err)
		}
		return s.byKey(tx.Model(&Sample{}), key).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, false, err
	}
	existing.CurrentVersionID = &version.ID
	return &existing, true, nil
}

// Update appends a new override version after checking the edit against
// the change-policy gate.
func (s *SampleStore) Update(key SampleKey, payload document.Document, editor string, stamp Stamp) (*Sample, *SampleVersion, error) {
	sample, err := s.Get(key)
	if err != nil {
		return nil, nil, err
	}
	if sample == nil {
		return nil, nil, fmt.Errorf("sample %s/%s: %w", key.SampleID, key.PlateID, ErrNotFound)
	}
	current, err := s.CurrentVersion(sample)
	if err != nil {
		return nil, nil, err
	}
	var baseline document.Document
	if current != nil {
		baseline = document.Document(current.Data)
	}
	if !document.ChangeAllowed(baseline, payload) {
		return nil, nil, fmt.Errorf("sample %s/%s: %w", key.SampleID, key.PlateID, ErrEditForbidden)
	}

	version := s.newVersion(key, document.StripMetadata(payload), editor, stamp)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create sample version: %w", err)
		}
		return s.byKey(tx.Model(&Sample{}), key).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	sample.CurrentVersionID = &version.ID
	return sample, version, nil
}

func (s *SampleStore) newVersion(key SampleKey, data document.Document, editor string, stamp Stamp) *SampleVersion {
	return &SampleVersion{
		SampleID:          key.SampleID,
		PlateID:           key.PlateID,
		RunVersionID:      key.RunVersionID,
		ProtocolVersionID: key.ProtocolVersionID,
		Data:              JSONDocument(data),
		ServerVersion:     stamp.ServerVersion,
		WebappVersion:     stamp.WebappVersion,
		UpdatedBy:         editor,
	}
}

// Get retrieves a sample by composite key. Returns nil, nil when no
// live row exists.
func (s *SampleStore) Get(key SampleKey) (*Sample, error) {
	var sample Sample
	err := s.byKey(s.db, key).First(&sample).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get sample: %w", err)
	}
	if sample.IsDeleted {
		return nil, nil
	}
	return &sample, nil
}

// CurrentVersion loads the version row the sample's pointer names.
func (s *SampleStore) CurrentVersion(sample *Sample) (*SampleVersion, error) {
	if sample == nil || sample.CurrentVersionID == nil {
		return nil, nil
	}
	var version SampleVersion
	err := s.db.Where("id = ?", *sample.CurrentVersionID).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get sample version: %w", err)
	}
	return &version, nil
}

// GetVersion retrieves a specific version of the sample. Returns
// nil, nil when the version is missing or keyed to another sample.
func (s *SampleStore) GetVersion(key SampleKey, versionID int64) (*SampleVersion, error) {
	var version SampleVersion
	err := s.byKey(s.db.Where("id = ?", versionID), key).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get sample version: %w", err)
	}
	return &version, nil
}

// List returns sample rows, newest first.
func (s *SampleStore) List(includeArchived bool) ([]Sample, error) {
	query := s.db.Order("created_on DESC, sample_id ASC")
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	var samples []Sample
	if err := query.Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return samples, nil
}

// ListByRunVersion returns the samples projected from one run version,
// ordered by sample label.
func (s *SampleStore) ListByRunVersion(runVersionID int64, includeArchived bool) ([]Sample, error) {
	query := s.db.Where("run_version_id = ?", runVersionID).Order("sample_id ASC")
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	var samples []Sample
	if err := query.Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("list run samples: %w", err)
	}
	return samples, nil
}

// RunID resolves the run identity a sample's run version belongs to.
func (s *SampleStore) RunID(sample *Sample) (int64, error) {
	var version RunVersion
	if err := s.db.Where("id = ?", sample.RunVersionID).First(&version).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve sample run: %w", err)
	}
	return version.RunID, nil
}

// Render produces the merged read output for a sample: the version
// payload plus the composite identifiers and the owning run/protocol
// identity IDs.
func (s *SampleStore) Render(sample *Sample, version *SampleVersion) document.Document {
	meta := versionMeta{}
	if version != nil {
		meta = versionMeta{
			ID:            version.ID,
			Data:          document.Document(version.Data),
			ServerVersion: version.ServerVersion,
			WebappVersion: version.WebappVersion,
			UpdatedOn:     version.UpdatedOn,
			UpdatedBy:     version.UpdatedBy,
		}
	}
	d := renderVersioned(sample.SampleID, sample.CreatedOn, sample.CreatedBy, meta, s.users, true, s.logger)
	d["sampleID"] = sample.SampleID
	d["plateID"] = sample.PlateID

	var runVersion RunVersion
	if err := s.db.Where("id = ?", sample.RunVersionID).First(&runVersion).Error; err == nil {
		d["runID"] = runVersion.RunID
	}
	var protocolVersion ProtocolVersion
	if err := s.db.Where("id = ?", sample.ProtocolVersionID).First(&protocolVersion).Error; err == nil {
		d["protocolID"] = protocolVersion.ProtocolID
	}
	return d
}
