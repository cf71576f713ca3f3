package store

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// UserStore provides versioned CRUD for user accounts. User identities
// are keyed by the authenticator's stable subject identifier.
type UserStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *gorm.DB, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{db: db, logger: logger}
}

// Create allocates the identity row for the given subject and its first
// version. The current pointer is set in a second update within the
// same transaction because the version row must exist first.
func (s *UserStore) Create(id string, payload document.Document, owner string, stamp Stamp) (*User, *UserVersion, error) {
	user := &User{ID: id, CreatedBy: owner}
	version := &UserVersion{
		UserID:        id,
		Data:          JSONDocument(document.StripMetadata(payload)),
		ServerVersion: stamp.ServerVersion,
		WebappVersion: stamp.WebappVersion,
		UpdatedBy:     owner,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create user version: %w", err)
		}
		return tx.Model(user).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	user.CurrentVersionID = &version.ID
	return user, version, nil
}

// Update appends a new version for the subject and repoints the current
// pointer. Returns ErrNotFound if the identity is missing or deleted.
func (s *UserStore) Update(id string, payload document.Document, editor string, stamp Stamp) (*User, *UserVersion, error) {
	user, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	current, err := s.CurrentVersion(user)
	if err != nil {
		return nil, nil, err
	}
	var baseline document.Document
	if current != nil {
		baseline = document.Document(current.Data)
	}
	if !document.ChangeAllowed(baseline, payload) {
		return nil, nil, fmt.Errorf("user %s: %w", id, ErrEditForbidden)
	}
	version := &UserVersion{
		UserID:        id,
		Data:          JSONDocument(document.StripMetadata(payload)),
		ServerVersion: stamp.ServerVersion,
		WebappVersion: stamp.WebappVersion,
		UpdatedBy:     editor,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("create user version: %w", err)
		}
		return tx.Model(user).Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	user.CurrentVersionID = &version.ID
	return user, version, nil
}

// Get retrieves a user identity. Returns nil, nil when no live identity
// exists.
func (s *UserStore) Get(id string) (*User, error) {
	var user User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.IsDeleted {
		return nil, nil
	}
	return &user, nil
}

// CurrentVersion loads the version row the identity's pointer names.
func (s *UserStore) CurrentVersion(user *User) (*UserVersion, error) {
	if user == nil || user.CurrentVersionID == nil {
		return nil, nil
	}
	var version UserVersion
	err := s.db.Where("id = ?", *user.CurrentVersionID).First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get user version: %w", err)
	}
	return &version, nil
}

// List returns all live user identities, newest first.
func (s *UserStore) List() ([]User, error) {
	var users []User
	if err := s.db.Where("is_deleted = ?", false).Order("created_on DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DisplayName resolves a user ID to the email recorded in the account's
// current version. Used when rendering audit fields.
func (s *UserStore) DisplayName(userID string) (string, bool) {
	user, err := s.Get(userID)
	if err != nil || user == nil {
		return "", false
	}
	version, err := s.CurrentVersion(user)
	if err != nil || version == nil {
		return "", false
	}
	email, ok := version.Data["email"].(string)
	return email, ok && email != ""
}

// Render produces the merged read output for a user.
func (s *UserStore) Render(user *User, version *UserVersion) document.Document {
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
	return renderVersioned(user.ID, user.CreatedOn, user.CreatedBy, meta, s, true, s.logger)
}
