package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"pipeline-integrity/defect"
	"pipeline-integrity/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist. The full
// ClassifiedDefect is kept as a JSON payload; the extracted columns exist
// only for indexed lookups and reporting queries.
func createTables(db *sql.DB) error {
	createDefectsTable := `
    CREATE TABLE IF NOT EXISTS defects (
        defect_id TEXT PRIMARY KEY,
        pipeline_id TEXT NOT NULL,
        segment_number INTEGER NOT NULL,
        defect_type TEXT NOT NULL,
        severity TEXT NOT NULL,
        probability REAL NOT NULL DEFAULT 0,
        classified_at DATETIME NOT NULL,
        payload TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_defects_severity ON defects(severity);
    CREATE INDEX IF NOT EXISTS idx_defects_type ON defects(defect_type);
    CREATE INDEX IF NOT EXISTS idx_defects_segment ON defects(segment_number);
    `

	if _, err := db.Exec(createDefectsTable); err != nil {
		return fmt.Errorf("error creating defects table: %s", err)
	}

	return nil
}

func (s *SQLiteClient) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreDefect upserts a single classified defect.
func (s *SQLiteClient) StoreDefect(d *defect.ClassifiedDefect) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("error marshaling defect: %s", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO defects (
			defect_id, pipeline_id, segment_number, defect_type,
			severity, probability, classified_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DefectID,
		d.PipelineID,
		d.SegmentNumber,
		string(d.DefectType),
		string(d.Severity),
		d.Probability,
		d.ClassifiedAt,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("error storing defect: %s", err)
	}
	return nil
}

// StoreDefects upserts a batch inside one transaction.
func (s *SQLiteClient) StoreDefects(defects []defect.ClassifiedDefect) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %s", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO defects (
			defect_id, pipeline_id, segment_number, defect_type,
			severity, probability, classified_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %s", err)
	}
	defer stmt.Close()

	for i := range defects {
		d := defects[i]
		payload, err := json.Marshal(d)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error marshaling defect %s: %s", d.DefectID, err)
		}
		if _, err := stmt.Exec(
			d.DefectID, d.PipelineID, d.SegmentNumber, string(d.DefectType),
			string(d.Severity), d.Probability, d.ClassifiedAt, string(payload),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("error executing statement: %s", err)
		}
	}

	return tx.Commit()
}

// GetDefect retrieves one defect by id.
func (s *SQLiteClient) GetDefect(defectID string) (defect.ClassifiedDefect, bool, error) {
	row := s.db.QueryRow("SELECT payload FROM defects WHERE defect_id = ?", defectID)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return defect.ClassifiedDefect{}, false, nil
		}
		return defect.ClassifiedDefect{}, false, fmt.Errorf("failed to retrieve defect: %s", err)
	}

	var d defect.ClassifiedDefect
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return defect.ClassifiedDefect{}, false, fmt.Errorf("error unmarshaling defect: %s", err)
	}

	return d, true, nil
}

// GetAllDefects retrieves every stored defect ordered by id.
func (s *SQLiteClient) GetAllDefects() ([]defect.ClassifiedDefect, error) {
	rows, err := s.db.Query("SELECT payload FROM defects ORDER BY defect_id")
	if err != nil {
		return nil, fmt.Errorf("error querying defects: %s", err)
	}
	defer rows.Close()

	var defects []defect.ClassifiedDefect
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("error scanning defect: %s", err)
		}

		var d defect.ClassifiedDefect
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("error unmarshaling defect: %s", err)
		}
		defects = append(defects, d)
	}

	return defects, rows.Err()
}

func (s *SQLiteClient) TotalDefects() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM defects").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting defects: %s", err)
	}
	return count, nil
}

// DeleteDefect deletes a defect by id.
func (s *SQLiteClient) DeleteDefect(defectID string) error {
	if _, err := s.db.Exec("DELETE FROM defects WHERE defect_id = ?", defectID); err != nil {
		return fmt.Errorf("failed to delete defect: %v", err)
	}
	return nil
}
