package store

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// ProtocolStore provides versioned CRUD for protocol templates.
type ProtocolStore struct {
	db     *gorm.DB
	users  *UserStore
	logger *slog.Logger
}

// NewProtocolStore creates a new ProtocolStore.
func NewProtocolStore(db *gorm.DB, users *UserStore, logger *slog.Logger) *ProtocolStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProtocolStore{db: db, users: users, logger: logger}
}

// Create allocates a protocol identity and its first version, then
// points the identity at it. Server-managed metadata is stripped from
// the payload before storage.
func (s *ProtocolStore) Create(payload document.Document, owner string, stamp Stamp) (*Protocol, *ProtocolVersion, error) {
	protocol := &Protocol{CreatedBy: owner}
	version := &ProtocolVersion{
		Data:          JSONDocument(document.StripMetadata(payload)),
		ServerVersion: stamp.ServerVersion,
		WebappVersion: stamp.WebappVersion,
		UpdatedBy:     owner,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(protocol).Error; err != nil {
			return fmt.Errorf("create protocol: %w", err)
		}
		version.ProtocolID = protocol.ID
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create protocol version: %w", err)
		}
		return tx.Model(protocol).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	protocol.CurrentVersionID = &version.ID
	return protocol, version, nil
}

// Update appends a new version after checking the edit against the
// change-policy gate. Returns ErrNotFound for a missing or soft-deleted
// identity and ErrEditForbidden when the gate rejects the edit.
func (s *ProtocolStore) Update(id int64, payload document.Document, editor string, stamp Stamp) (*Protocol, *ProtocolVersion, error) {
	protocol, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if protocol == nil {
		return nil, nil, fmt.Errorf("protocol %d: %w", id, ErrNotFound)
	}
	current, err := s.CurrentVersion(protocol)
	if err != nil {
		return nil, nil, err
	}
	var baseline document.Document
	if current != nil {
		baseline = document.Document(current.Data)
	}
	if !document.ChangeAllowed(baseline, payload) {
		return nil, nil, fmt.Errorf("protocol %d: %w", id, ErrEditForbidden)
	}

	version := &ProtocolVersion{
		ProtocolID:    id,
		Data:          JSONDocument(document.StripMetadata(payload)),
		ServerVersion: stamp.ServerVersion,
		WebappVersion: stamp.WebappVersion,
		UpdatedBy:     editor,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create protocol version: %w", err)
		}
		return tx.Model(protocol).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	protocol.CurrentVersionID = &version.ID
	return protocol, version, nil
}

// Get retrieves a protocol identity. Returns nil, nil when no live
// identity exists (missing or soft-deleted).
func (s *ProtocolStore) Get(id int64) (*Protocol, error) {
	var protocol Protocol
	err := s.db.Where("id = ?", id).First(&protocol).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get protocol: %w", err)
	}
	if protocol.IsDeleted {
		return nil, nil
	}
	return &protocol, nil
}

// CurrentVersion loads the version row the identity's pointer names.
func (s *ProtocolStore) CurrentVersion(protocol *Protocol) (*ProtocolVersion, error) {
	if protocol == nil || protocol.CurrentVersionID == nil {
		return nil, nil
	}
	var version ProtocolVersion
	err := s.db.Where("id = ?", *protocol.CurrentVersionID).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get protocol version: %w", err)
	}
	return &version, nil
}

// GetVersion retrieves a specific version of the protocol. Returns
// nil, nil when the version is missing or belongs to another identity.
func (s *ProtocolStore) GetVersion(id, versionID int64) (*ProtocolVersion, error) {
	var version ProtocolVersion
	err := s.db.Where("id = ? AND protocol_id = ?", versionID, id).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get protocol version: %w", err)
	}
	return &version, nil
}

// VersionByID retrieves a protocol version by its row ID alone, used
// when the caller holds a pinned version reference rather than the
// protocol identity. Returns nil, nil when missing.
func (s *ProtocolStore) VersionByID(versionID int64) (*ProtocolVersion, error) {
	var version ProtocolVersion
	err := s.db.Where("id = ?", versionID).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get protocol version: %w", err)
	}
	return &version, nil
}

// History returns every version of the protocol, oldest first. The full
// audit trail stays queryable because version rows are never rewritten.
func (s *ProtocolStore) History(id int64) ([]ProtocolVersion, error) {
	var versions []ProtocolVersion
	if err := s.db.Where("protocol_id = ?", id).Order("updated_on ASC, id ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("list protocol versions: %w", err)
	}
	return versions, nil
}

// List returns protocol identities, newest first. Archived identities
// are included only when requested.
func (s *ProtocolStore) List(includeArchived bool) ([]Protocol, error) {
	query := s.db.Order("created_on DESC, id DESC")
	if !includeArchived {
		query = query.Where("is_deleted = ?", false)
	}
	var protocols []Protocol
	if err := query.Find(&protocols).Error; err != nil {
		return nil, fmt.Errorf("list protocols: %w", err)
	}
	return protocols, nil
}

// Delete soft-deletes the protocol, or with purge removes the identity
// and its whole version history.
func (s *ProtocolStore) Delete(id int64, purge bool) error {
	protocol, err := s.Get(id)
	if err != nil {
		return err
	}
	if protocol == nil {
		return fmt.Errorf("protocol %d: %w", id, ErrNotFound)
	}
	if !purge {
		return s.db.Model(protocol).Update("is_deleted", true).Error
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Detach the pointer before removing version rows.
		if err := tx.Model(protocol).Update("current_version_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("protocol_id = ?", id).Delete(&ProtocolVersion{}).Error; err != nil {
			return fmt.Errorf("purge protocol versions: %w", err)
		}
		if err := tx.Delete(protocol).Error; err != nil {
			return fmt.Errorf("purge protocol: %w", err)
		}
		return nil
	})
}

// Render produces the merged read output for a protocol version.
func (s *ProtocolStore) Render(protocol *Protocol, version *ProtocolVersion, includeLargeFields bool) document.Document {
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
	return renderVersioned(protocol.ID, protocol.CreatedOn, protocol.CreatedBy, meta, s.users, includeLargeFields, s.logger)
}

// SaveMigrated persists a version payload rewritten in place by the
// legacy format migrator. This is the one sanctioned mutation of a
// version row: the content is semantically identical, only its shape
// is upgraded, and it runs at most once per record.
func (s *ProtocolStore) SaveMigrated(version *ProtocolVersion) error {
	return s.db.Model(version).Update("data", version.Data).Error
}
