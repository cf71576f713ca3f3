package store

import (
	"fmt"

	"gorm.io/gorm"
)

// AttachmentStore holds uploaded blobs and their links to run versions.
type AttachmentStore struct {
	db *gorm.DB
}

// NewAttachmentStore creates a new AttachmentStore.
func NewAttachmentStore(db *gorm.DB) *AttachmentStore {
	return &AttachmentStore{db: db}
}

// Create stores a blob and links it to the given run version.
func (s *AttachmentStore) Create(runVersionID int64, name, mimeType string, data []byte, owner string) (*Attachment, error) {
	attachment := &Attachment{
		Name:      name,
		MimeType:  mimeType,
		Data:      data,
		CreatedBy: owner,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attachment).Error; err != nil {
			return fmt.Errorf("create attachment: %w", err)
		}
		link := &RunVersionAttachment{RunVersionID: runVersionID, AttachmentID: attachment.ID}
		if err := tx.Create(link).Error; err != nil {
			return fmt.Errorf("link attachment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attachment, nil
}

// Get retrieves an attachment blob. Returns nil, nil when missing or
// deleted.
func (s *AttachmentStore) Get(id int64) (*Attachment, error) {
	var attachment Attachment
	err := s.db.Where("id = ?", id).First(&attachment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	if attachment.IsDeleted {
		return nil, nil
	}
	return &attachment, nil
}

// ListByRunVersion returns the attachments linked to a run version.
// Blob data is omitted; callers fetch individual attachments for bytes.
func (s *AttachmentStore) ListByRunVersion(runVersionID int64) ([]Attachment, error) {
	var attachments []Attachment
	err := s.db.
		Select("attachments.id", "attachments.name", "attachments.mimetype", "attachments.created_on", "attachments.created_by").
		Joins("JOIN run_version_attachments ON run_version_attachments.attachment_id = attachments.id").
		Where("run_version_attachments.run_version_id = ? AND attachments.is_deleted = ?", runVersionID, false).
		Order("attachments.id ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, fmt.Errorf("list run attachments: %w", err)
	}
	return attachments, nil
}

// RunID resolves the run an attachment was uploaded against via its
// run-version link. Returns 0 when the attachment is unlinked.
func (s *AttachmentStore) RunID(attachmentID int64) (int64, error) {
	var link RunVersionAttachment
	err := s.db.Where("attachment_id = ?", attachmentID).First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve attachment link: %w", err)
	}
	var version RunVersion
	if err := s.db.Where("id = ?", link.RunVersionID).First(&version).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve attachment run: %w", err)
	}
	return version.RunID, nil
}

// Delete soft-deletes an attachment.
func (s *AttachmentStore) Delete(id int64) error {
	attachment, err := s.Get(id)
	if err != nil {
		return err
	}
	if attachment == nil {
		return fmt.Errorf("attachment %d: %w", id, ErrNotFound)
	}
	return s.db.Model(attachment).Update("is_deleted", true).Error
}
