package store

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// RunStore provides versioned CRUD for protocol executions. Every run
// is pinned to the protocol version it was instantiated against.
type RunStore struct {
	db     *gorm.DB
	users  *UserStore
	logger *slog.Logger
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *gorm.DB, users *UserStore, logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{db: db, users: users, logger: logger}
}

// Create allocates a run identity pinned to protocolVersionID and its
// first version. Returns ErrBadReference when the protocol version does
// not exist.
func (s *RunStore) Create(protocolVersionID int64, payload document.Document, owner string, stamp Stamp) (*Run, *RunVersion, error) {
	var count int64
	if err := s.db.Model(&ProtocolVersion{}).Where("id = ?", protocolVersionID).Count(&count).Error; err != nil {
		return nil, nil, fmt.Errorf("check protocol version: %w", err)
	}
	if count == 0 {
		return nil, nil, fmt.Errorf("protocol version %d: %w", protocolVersionID, ErrBadReference)
	}

	run := &Run{CreatedBy: owner, ProtocolVersionID: protocolVersionID}
	version := &RunVersion{
		Data:          JSONDocument(document.StripMetadata(payload)),
		ServerVersion: stamp.ServerVersion,
		WebappVersion: stamp.WebappVersion,
		UpdatedBy:     owner,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		version.RunID = run.ID
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create run version: %w", err)
		}
		return tx.Model(run).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	run.CurrentVersionID = &version.ID
	return run, version, nil
}

// Update appends a new version after checking the edit against the
// change-policy gate. Returns ErrNotFound for a missing or soft-deleted
// identity and ErrEditForbidden when the gate rejects the edit.
func (s *RunStore) Update(id int64, payload document.Document, editor string, stamp Stamp) (*Run, *RunVersion, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	current, err := s.CurrentVersion(run)
	if err != nil {
		return nil, nil, err
	}
	var baseline document.Document
	if current != nil {
		baseline = document.Document(current.Data)
	}
	if !document.ChangeAllowed(baseline, payload) {
		return nil, nil, fmt.Errorf("run %d: %w", id, ErrEditForbidden)
	}

	version := &RunVersion{
		RunID:         id,
		Data:          JSONDocument(document.StripMetadata(payload)),
		ServerVersion: stamp.ServerVersion,
		WebappVersion: stamp.WebappVersion,
		UpdatedBy:     editor,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create run version: %w", err)
		}
		return tx.Model(run).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	run.CurrentVersionID = &version.ID
	return run, version, nil
}

// Get retrieves a run identity. Returns nil, nil when no live identity
// exists.
func (s *RunStore) Get(id int64) (*Run, error) {
	var run Run
	err := s.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.IsDeleted {
		return nil, nil
	}
	return &run, nil
}

// CurrentVersion loads the version row the identity's pointer names.
func (s *RunStore) CurrentVersion(run *Run) (*RunVersion, error) {
	if run == nil || run.CurrentVersionID == nil {
		return nil, nil
	}
	var version RunVersion
	err := s.db.Where("id = ?", *run.CurrentVersionID).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get run version: %w", err)
	}
	return &version, nil
}

// GetVersion retrieves a specific version of the run. Returns nil, nil
// when the version is missing or belongs to another identity.
func (s *RunStore) GetVersion(id, versionID int64) (*RunVersion, error) {
	var version RunVersion
	err := s.db.Where("id = ? AND run_id = ?", versionID, id).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get run version: %w", err)
	}
	return &version, nil
}

// History returns every version of the run, oldest first.
func (s *RunStore) History(id int64) ([]RunVersion, error) {
	var versions []RunVersion
	if err := s.db.Where("run_id = ?", id).Order("updated_on ASC, id ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("list run versions: %w", err)
	}
	return versions, nil
}

// List returns run identities, newest first.
func (s *RunStore) List(includeArchived bool) ([]Run, error) {
	query := s.db.Order("created_on DESC, id DESC")
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Delete soft-deletes the run, or with purge removes the identity, its
// version history, attachment links, and the samples projected from
// those versions.
func (s *RunStore) Delete(id int64, purge bool) error {
	run, err := s.Get(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if !purge {
		return s.db.Model(run).Update("is_deleted", true).Error
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(run).Update("current_version_id", nil).Error; err != nil {
			return err
		}
		var versionIDs []int64
		if err := tx.Model(&RunVersion{}).Where("run_id = ?", id).Pluck("id", &versionIDs).Error; err != nil {
			return fmt.Errorf("list run version ids: %w", err)
		}
		if len(versionIDs) > 0 {
			if err := tx.Where("run_version_id IN ?", versionIDs).Delete(&RunVersionAttachment{}).Error; err != nil {
				return fmt.Errorf("purge attachment links: %w", err)
			}
			if err := tx.Where("run_version_id IN ?", versionIDs).Delete(&SampleVersion{}).Error; err != nil {
				return fmt.Errorf("purge sample versions: %w", err)
			}
			if err := tx.Where("run_version_id IN ?", versionIDs).Delete(&Sample{}).Error; err != nil {
				return fmt.Errorf("purge samples: %w", err)
			}
		}
		if err := tx.Where("run_id = ?", id).Delete(&RunVersion{}).Error; err != nil {
			return fmt.Errorf("purge run versions: %w", err)
		}
		if err := tx.Delete(run).Error; err != nil {
			return fmt.Errorf("purge run: %w", err)
		}
		return nil
	})
}

// Render produces the merged read output for a run version.
func (s *RunStore) Render(run *Run, version *RunVersion, includeLargeFields bool) document.Document {
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
	return renderVersioned(run.ID, run.CreatedOn, run.CreatedBy, meta, s.users, includeLargeFields, s.logger)
}

// SaveMigrated persists a version payload rewritten in place by the
// legacy format migrator.
func (s *RunStore) SaveMigrated(version *RunVersion) error {
	return s.db.Model(version).Update("data", version.Data).Error
}
