package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// NewSQLiteStore creates a SQLite-backed store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite store ready")
	return &SQLStore{db: db, dialect: dialectSQLite, logger: logger}, nil
}

// createSQLiteSchema creates the database tables and indexes.
func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		age INTEGER,
		gender TEXT NOT NULL DEFAULT '',
		medical_history TEXT NOT NULL DEFAULT '',
		chronic_conditions TEXT NOT NULL DEFAULT '[]',
		allergies TEXT NOT NULL DEFAULT '[]',
		medications TEXT NOT NULL DEFAULT '[]',
		surgical_history TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		content_text TEXT NOT NULL DEFAULT '',
		uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER REFERENCES profiles(id) ON DELETE SET NULL,
		symptoms TEXT NOT NULL,
		urgency_level TEXT NOT NULL,
		urgency_description TEXT NOT NULL DEFAULT '',
		reasoning TEXT NOT NULL DEFAULT '',
		recommendations TEXT NOT NULL DEFAULT '[]',
		dos TEXT NOT NULL DEFAULT '[]',
		donts TEXT NOT NULL DEFAULT '[]',
		disclaimer TEXT NOT NULL DEFAULT '',
		is_medical_query INTEGER NOT NULL DEFAULT 1,
		classification_reason TEXT NOT NULL DEFAULT '',
		used_document_ids TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS literature_references (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id INTEGER NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		pmid TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		abstract TEXT NOT NULL DEFAULT '',
		journal TEXT NOT NULL DEFAULT '',
		pub_date TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS clinical_trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id INTEGER NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		nct_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		completion_date TEXT NOT NULL DEFAULT '',
		conditions TEXT NOT NULL DEFAULT '[]',
		url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS appointments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER REFERENCES profiles(id) ON DELETE SET NULL,
		assessment_id INTEGER NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		urgency_level TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_patient ON documents(patient_id);
	CREATE INDEX IF NOT EXISTS idx_assessments_patient ON assessments(patient_id);
	CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);
	CREATE INDEX IF NOT EXISTS idx_literature_assessment ON literature_references(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_trials_assessment ON clinical_trials(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id);
	`

	_, err := db.Exec(schema)
	return err
}
