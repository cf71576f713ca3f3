package store

import (
	"log/slog"
	"time"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// Stamp carries the provenance strings recorded on every version row.
// ServerVersion comes from the running binary, WebappVersion from the
// client when it reports one.
type Stamp struct {
	ServerVersion string
	WebappVersion string
}

// versionMeta is the driver-independent view of a version row used when
// rendering merged output.
type versionMeta struct {
	ID            int64
	Data          document.Document
	ServerVersion string
	WebappVersion string
	UpdatedOn     time.Time
	UpdatedBy     string
}

// displayResolver resolves a user ID to an email-like display string.
type displayResolver interface {
	DisplayName(userID string) (string, bool)
}

// renderVersioned merges a version payload with identity- and
// version-derived fields, in that order: payload fields first, then
// id / created_on / resolved created_by, then version_id / updated_on /
// provenance / resolved updated_by. Audit user IDs resolve to the
// owner's email; when resolution fails the raw ID is kept and the
// failure logged.
func renderVersioned(
	id any,
	createdOn time.Time,
	createdBy string,
	version versionMeta,
	users displayResolver,
	includeLargeFields bool,
	logger *slog.Logger,
) document.Document {
	d := document.DeepCopy(version.Data)

	if !includeLargeFields {
		document.ElideLargeFields(d)
	}

	d["id"] = id
	if !createdOn.IsZero() {
		d["created_on"] = createdOn
	}
	if createdBy != "" {
		d["created_by"] = resolveDisplay(users, createdBy, logger)
	}
	if version.ID != 0 {
		d["version_id"] = version.ID
	}
	if !version.UpdatedOn.IsZero() {
		d["updated_on"] = version.UpdatedOn
	}
	if version.ServerVersion != "" {
		d["server_version"] = version.ServerVersion
	}
	if version.WebappVersion != "" {
		d["webapp_version"] = version.WebappVersion
	}
	if version.UpdatedBy != "" {
		d["updated_by"] = resolveDisplay(users, version.UpdatedBy, logger)
	}

	return d
}

func resolveDisplay(users displayResolver, userID string, logger *slog.Logger) string {
	if users != nil {
		if display, ok := users.DisplayName(userID); ok {
			return display
		}
	}
	if logger != nil {
		logger.Debug("failed to resolve user display name", "user", userID)
	}
	return userID
}
