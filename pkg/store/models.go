package store

import "time"

// Protocol is the identity row for a protocol template. The current
// pointer is nullable because the identity is inserted before the
// version row that satisfies it exists (two-phase construction).
type Protocol struct {
	ID               int64      `gorm:"primaryKey;column:id;autoIncrement"`
	IsDeleted        bool       `gorm:"column:is_deleted;default:false;not null"`
	CreatedOn        time.Time  `gorm:"column:created_on;autoCreateTime"`
	CreatedBy        string     `gorm:"column:created_by;type:varchar(64);index"`
	CurrentVersionID *int64     `gorm:"column:current_version_id"`
}

// TableName returns the GORM table name.
func (Protocol) TableName() string { return "protocols" }

// ProtocolVersion is an immutable snapshot of a protocol's content.
type ProtocolVersion struct {
	ID            int64        `gorm:"primaryKey;column:id;autoIncrement"`
	ProtocolID    int64        `gorm:"column:protocol_id;index;not null"`
	Data          JSONDocument `gorm:"column:data;type:text"`
	ServerVersion string       `gorm:"column:server_version;type:varchar(40)"`
	WebappVersion string       `gorm:"column:webapp_version;type:varchar(40)"`
	UpdatedOn     time.Time    `gorm:"column:updated_on;autoCreateTime"`
	UpdatedBy     string       `gorm:"column:updated_by;type:varchar(64)"`
}

// TableName returns the GORM table name.
func (ProtocolVersion) TableName() string { return "protocol_versions" }

// Run is the identity row for a protocol execution. ProtocolVersionID
// pins the run to the exact protocol version it was instantiated
// against; later protocol edits never affect existing runs.
type Run struct {
	ID                int64     `gorm:"primaryKey;column:id;autoIncrement"`
	IsDeleted         bool      `gorm:"column:is_deleted;default:false;not null"`
	CreatedOn         time.Time `gorm:"column:created_on;autoCreateTime"`
	CreatedBy         string    `gorm:"column:created_by;type:varchar(64);index"`
	CurrentVersionID  *int64    `gorm:"column:current_version_id"`
	ProtocolVersionID int64     `gorm:"column:protocol_version_id;index;not null"`
}

// TableName returns the GORM table name.
func (Run) TableName() string { return "runs" }

// RunVersion is an immutable snapshot of a run's content.
type RunVersion struct {
	ID            int64        `gorm:"primaryKey;column:id;autoIncrement"`
	RunID         int64        `gorm:"column:run_id;index;not null"`
	Data          JSONDocument `gorm:"column:data;type:text"`
	ServerVersion string       `gorm:"column:server_version;type:varchar(40)"`
	WebappVersion string       `gorm:"column:webapp_version;type:varchar(40)"`
	UpdatedOn     time.Time    `gorm:"column:updated_on;autoCreateTime"`
	UpdatedBy     string       `gorm:"column:updated_by;type:varchar(64)"`
}

// TableName returns the GORM table name.
func (RunVersion) TableName() string { return "run_versions" }

// User is the identity row for an account. The ID is the stable subject
// identifier from the authenticator (JWT sub).
type User struct {
	ID               string    `gorm:"primaryKey;column:id;type:varchar(64)"`
	IsDeleted        bool      `gorm:"column:is_deleted;default:false;not null"`
	CreatedOn        time.Time `gorm:"column:created_on;autoCreateTime"`
	CreatedBy        string    `gorm:"column:created_by;type:varchar(64)"`
	CurrentVersionID *int64    `gorm:"column:current_version_id"`
}

// TableName returns the GORM table name.
func (User) TableName() string { return "users" }

// UserVersion is an immutable snapshot of an account's profile.
type UserVersion struct {
	ID            int64        `gorm:"primaryKey;column:id;autoIncrement"`
	UserID        string       `gorm:"column:user_id;type:varchar(64);index;not null"`
	Data          JSONDocument `gorm:"column:data;type:text"`
	ServerVersion string       `gorm:"column:server_version;type:varchar(40)"`
	WebappVersion string       `gorm:"column:webapp_version;type:varchar(40)"`
	UpdatedOn     time.Time    `gorm:"column:updated_on;autoCreateTime"`
	UpdatedBy     string       `gorm:"column:updated_by;type:varchar(64)"`
}

// TableName returns the GORM table name.
func (UserVersion) TableName() string { return "user_versions" }

// Sample is the denormalized projection row, keyed by the composite
// (sample, plate, run version, protocol version). It keeps its own
// current/version split for edit history of overrides.
type Sample struct {
	SampleID          string    `gorm:"primaryKey;column:sample_id;type:varchar(64)"`
	PlateID           string    `gorm:"primaryKey;column:plate_id;type:varchar(64)"`
	RunVersionID      int64     `gorm:"primaryKey;column:run_version_id;autoIncrement:false"`
	ProtocolVersionID int64     `gorm:"primaryKey;column:protocol_version_id;autoIncrement:false"`
	IsDeleted         bool      `gorm:"column:is_deleted;default:false;not null"`
	CreatedOn         time.Time `gorm:"column:created_on;autoCreateTime"`
	CreatedBy         string    `gorm:"column:created_by;type:varchar(64);index"`
	CurrentVersionID  *int64    `gorm:"column:current_version_id"`
}

// TableName returns the GORM table name.
func (Sample) TableName() string { return "samples" }

// SampleVersion is an immutable snapshot of a projected sample,
// back-referencing its parent by the full composite key.
type SampleVersion struct {
	ID                int64        `gorm:"primaryKey;column:id;autoIncrement"`
	SampleID          string       `gorm:"column:sample_id;type:varchar(64);index:idx_sample_version_key,priority:1;not null"`
	PlateID           string       `gorm:"column:plate_id;type:varchar(64);index:idx_sample_version_key,priority:2;not null"`
	RunVersionID      int64        `gorm:"column:run_version_id;index:idx_sample_version_key,priority:3;not null"`
	ProtocolVersionID int64        `gorm:"column:protocol_version_id;index:idx_sample_version_key,priority:4;not null"`
	Data              JSONDocument `gorm:"column:data;type:text"`
	ServerVersion     string       `gorm:"column:server_version;type:varchar(40)"`
	WebappVersion     string       `gorm:"column:webapp_version;type:varchar(40)"`
	UpdatedOn         time.Time    `gorm:"column:updated_on;autoCreateTime"`
	UpdatedBy         string       `gorm:"column:updated_by;type:varchar(64)"`
}

// TableName returns the GORM table name.
func (SampleVersion) TableName() string { return "sample_versions" }

// Attachment is an opaque uploaded blob.
type Attachment struct {
	ID        int64     `gorm:"primaryKey;column:id;autoIncrement"`
	Name      string    `gorm:"column:name;type:varchar(256)"`
	MimeType  string    `gorm:"column:mimetype;type:varchar(64)"`
	Data      []byte    `gorm:"column:data"`
	IsDeleted bool      `gorm:"column:is_deleted;default:false;not null"`
	CreatedOn time.Time `gorm:"column:created_on;autoCreateTime"`
	CreatedBy string    `gorm:"column:created_by;type:varchar(64)"`
}

// TableName returns the GORM table name.
func (Attachment) TableName() string { return "attachments" }

// RunVersionAttachment joins attachments to the run versions they were
// uploaded against.
type RunVersionAttachment struct {
	ID           int64 `gorm:"primaryKey;column:id;autoIncrement"`
	RunVersionID int64 `gorm:"column:run_version_id;index;not null"`
	AttachmentID int64 `gorm:"column:attachment_id;index;not null"`
}

// TableName returns the GORM table name.
func (RunVersionAttachment) TableName() string { return "run_version_attachments" }
