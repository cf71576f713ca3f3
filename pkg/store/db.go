package store

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors returned by store operations. The API layer maps
// these onto transport status codes; the stores never see HTTP.
var (
	ErrNotFound      = errors.New("record not found")
	ErrEditForbidden = errors.New("edit rejected by change policy")
	ErrBadReference  = errors.New("referenced record does not exist")
)

// Open connects to the database selected by dbType: "postgres",
// "mysql", or "sqlite" (DSN ":memory:" gives an in-process database).
func Open(dbType, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch dbType {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// AutoMigrate creates or updates every table the registry requires.
func AutoMigrate(db *gorm.DB) error {
	models := []any{
		&User{}, &UserVersion{},
		&Protocol{}, &ProtocolVersion{},
		&Run{}, &RunVersion{},
		&Sample{}, &SampleVersion{},
		&Attachment{}, &RunVersionAttachment{},
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate %T: %w", model, err)
		}
	}
	return nil
}
