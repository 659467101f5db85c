// Package db is the persistence collaborator for the defect catalog: an
// opaque map from defect id to the serialized ClassifiedDefect. Every field,
// including the clamped / missing-feature provenance flags, round-trips
// losslessly because the full record is stored as a JSON payload next to the
// indexed columns.
package db

import (
	"fmt"
	"strings"

	"pipeline-integrity/defect"
	"pipeline-integrity/utils"
)

// Client stores and retrieves classified defects keyed by defect id.
type Client interface {
	Close() error

	// StoreDefect upserts one entry (last write wins, like the catalog).
	StoreDefect(d *defect.ClassifiedDefect) error

	// StoreDefects upserts a batch atomically where the backend allows it.
	StoreDefects(defects []defect.ClassifiedDefect) error

	GetDefect(defectID string) (defect.ClassifiedDefect, bool, error)
	GetAllDefects() ([]defect.ClassifiedDefect, error)
	TotalDefects() (int, error)
	DeleteDefect(defectID string) error
}

// NewClient builds the backend selected by the DB_TYPE environment variable
// (sqlite or mongo; sqlite by default).
func NewClient() (Client, error) {
	dbType := strings.ToLower(utils.GetEnv("DB_TYPE", "sqlite"))
	switch dbType {
	case "sqlite", "sqlite3":
		return NewSQLiteClient(utils.GetEnv("SQLITE_DSN", "storage/defects.db"))
	case "mongo", "mongodb":
		return NewMongoClient(utils.GetEnv("MONGO_URI", "mongodb://localhost:27017"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", dbType)
	}
}
