package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const defaultListLimit = 50

// SQLStore implements domain.AssessmentStore over database/sql. Queries are
// written with '?' placeholders and rebound for PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *logrus.Logger
}

var _ domain.AssessmentStore = (*SQLStore)(nil)

// Open creates the store selected by config.Driver
func Open(ctx context.Context, config domain.DatabaseConfig, logger *logrus.Logger) (*SQLStore, error) {
	switch config.Driver {
	case "", "sqlite":
		path := config.SQLitePath
		if path == "" {
			path = "symptom-assessment.db"
		}
		return NewSQLiteStore(path, logger)
	case "postgres":
		return NewPostgresStoreFromURL(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertReturningID runs an INSERT ... RETURNING id, supported by both dialects
func (s *SQLStore) insertReturningID(ctx context.Context, q queryer, query string, args ...interface{}) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// GetProfile retrieves a patient profile by id
func (s *SQLStore) GetProfile(ctx context.Context, patientID int64) (*domain.PatientProfile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, first_name, last_name, age, gender, medical_history,
			chronic_conditions, allergies, medications, surgical_history
		FROM profiles
		WHERE id = ?
	`), patientID)
	return s.scanProfileRow(row)
}

// FindProfileByName matches first and last name case-insensitively
func (s *SQLStore) FindProfileByName(ctx context.Context, firstName, lastName string) (*domain.PatientProfile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, first_name, last_name, age, gender, medical_history,
			chronic_conditions, allergies, medications, surgical_history
		FROM profiles
		WHERE LOWER(first_name) = LOWER(?) AND LOWER(last_name) = LOWER(?)
		ORDER BY id
		LIMIT 1
	`), strings.TrimSpace(firstName), strings.TrimSpace(lastName))
	return s.scanProfileRow(row)
}

func (s *SQLStore) scanProfileRow(row scanner) (*domain.PatientProfile, error) {
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	return profile, nil
}

func scanProfile(s scanner) (*domain.PatientProfile, error) {
	p := &domain.PatientProfile{}
	var (
		age                                       sql.NullInt64
		conditions, allergies, meds, surgicalHist string
	)
	if err := s.Scan(&p.ID, &p.FirstName, &p.LastName, &age, &p.Gender, &p.MedicalHistory,
		&conditions, &allergies, &meds, &surgicalHist); err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	if err := decodeJSONColumns(
		column{conditions, &p.ChronicConditions},
		column{allergies, &p.Allergies},
		column{meds, &p.Medications},
		column{surgicalHist, &p.SurgicalHistory},
	); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProfile inserts a profile, or updates it when ID is set
func (s *SQLStore) SaveProfile(ctx context.Context, profile *domain.PatientProfile) error {
	encoded, err := encodeJSONColumns(profile.ChronicConditions, profile.Allergies, profile.Medications, profile.SurgicalHistory)
	if err != nil {
		return err
	}
	var age interface{}
	if profile.Age != nil {
		age = *profile.Age
	}

	if profile.ID != 0 {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			UPDATE profiles SET
				first_name = ?, last_name = ?, age = ?, gender = ?, medical_history = ?,
				chronic_conditions = ?, allergies = ?, medications = ?, surgical_history = ?
			WHERE id = ?
		`), profile.FirstName, profile.LastName, age, profile.Gender, profile.MedicalHistory,
			encoded[0], encoded[1], encoded[2], encoded[3], profile.ID)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		return nil
	}

	id, err := s.insertReturningID(ctx, s.db, `
		INSERT INTO profiles (
			first_name, last_name, age, gender, medical_history,
			chronic_conditions, allergies, medications, surgical_history
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.FirstName, profile.LastName, age, profile.Gender, profile.MedicalHistory,
		encoded[0], encoded[1], encoded[2], encoded[3])
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	profile.ID = id
	return nil
}

// ListDocuments returns a patient's documents, oldest first
func (s *SQLStore) ListDocuments(ctx context.Context, patientID int64) ([]domain.StoredDocument, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, patient_id, filename, file_type, content_text, uploaded_at
		FROM documents
		WHERE patient_id = ?
		ORDER BY uploaded_at, id
	`), patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.StoredDocument{}
	for rows.Next() {
		var d domain.StoredDocument
		if err := rows.Scan(&d.ID, &d.PatientID, &d.Filename, &d.FileType, &d.ContentText, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SaveDocument stores an uploaded document's extracted text
func (s *SQLStore) SaveDocument(ctx context.Context, doc *domain.StoredDocument) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	id, err := s.insertReturningID(ctx, s.db, `
		INSERT INTO documents (patient_id, filename, file_type, content_text, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.PatientID, doc.Filename, doc.FileType, doc.ContentText, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.ID = id
	return nil
}

// SaveAssessment stores an assessment with its references in one transaction
func (s *SQLStore) SaveAssessment(ctx context.Context, record *domain.AssessmentRecord) error {
	a := record.Assessment
	encoded, err := encodeJSONColumns(a.Recommendations, a.Dos, a.Donts, a.UsedDocumentIDs)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insertReturningID(ctx, tx, `
		INSERT INTO assessments (
			patient_id, symptoms, urgency_level, urgency_description, reasoning,
			recommendations, dos, donts, disclaimer, is_medical_query,
			classification_reason, used_document_ids, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(record.PatientID), record.Symptoms, string(a.UrgencyLevel), a.UrgencyDescription, a.Reasoning,
		encoded[0], encoded[1], encoded[2], a.Disclaimer, a.IsMedicalQuery,
		a.ClassificationReason, encoded[3], record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	for i, ref := range a.LiteratureReferences {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO literature_references (
				assessment_id, position, pmid, title, abstract, journal, pub_date, authors, url
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), id, i, ref.PMID, ref.Title, ref.Abstract, ref.Journal, ref.Date, ref.Authors, ref.URL); err != nil {
			return fmt.Errorf("failed to insert literature reference: %w", err)
		}
	}

	for i, trial := range a.ClinicalTrials {
		conditions, err := json.Marshal(nonNilStrings(trial.Conditions))
		if err != nil {
			return fmt.Errorf("failed to encode trial conditions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO clinical_trials (
				assessment_id, position, nct_id, title, status, phase, summary,
				start_date, completion_date, conditions, url
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), id, i, trial.NCTID, trial.Title, trial.Status, trial.Phase, trial.Summary,
			trial.StartDate, trial.CompletionDate, string(conditions), trial.URL); err != nil {
			return fmt.Errorf("failed to insert clinical trial: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assessment: %w", err)
	}
	record.ID = id

	s.logger.WithFields(logrus.Fields{
		"assessment_id": id,
		"urgency_level": a.UrgencyLevel,
		"references":    len(a.LiteratureReferences),
		"trials":        len(a.ClinicalTrials),
	}).Debug("Assessment persisted")
	return nil
}

const assessmentColumns = `
	id, patient_id, symptoms, urgency_level, urgency_description, reasoning,
	recommendations, dos, donts, disclaimer, is_medical_query,
	classification_reason, used_document_ids, created_at`

func scanAssessment(s scanner) (*domain.AssessmentRecord, error) {
	r := &domain.AssessmentRecord{}
	var (
		patientID                            sql.NullInt64
		urgency                              string
		recommendations, dos, donts, usedIDs string
	)
	a := &r.Assessment
	if err := s.Scan(&r.ID, &patientID, &r.Symptoms, &urgency, &a.UrgencyDescription, &a.Reasoning,
		&recommendations, &dos, &donts, &a.Disclaimer, &a.IsMedicalQuery,
		&a.ClassificationReason, &usedIDs, &r.CreatedAt); err != nil {
		return nil, err
	}
	if patientID.Valid {
		id := patientID.Int64
		r.PatientID = &id
	}
	a.UrgencyLevel, _ = domain.ParseUrgencyLevel(urgency)
	if err := decodeJSONColumns(
		column{recommendations, &a.Recommendations},
		column{dos, &a.Dos},
		column{donts, &a.Donts},
		column{usedIDs, &a.UsedDocumentIDs},
	); err != nil {
		return nil, err
	}
	a.LiteratureReferences = []domain.LiteratureArticle{}
	a.ClinicalTrials = []domain.ClinicalTrial{}
	return r, nil
}

// GetAssessment loads an assessment with its references
func (s *SQLStore) GetAssessment(ctx context.Context, id int64) (*domain.AssessmentRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`), id)
	record, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}
	if err := s.loadReferences(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ListAssessments returns the newest assessments, optionally for one patient
func (s *SQLStore) ListAssessments(ctx context.Context, patientID *int64, limit int) ([]domain.AssessmentRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	args := []interface{}{}
	if patientID != nil {
		query += ` WHERE patient_id = ?`
		args = append(args, *patientID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	records := []domain.AssessmentRecord{}
	for rows.Next() {
		record, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		if err := s.loadReferences(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLStore) loadReferences(ctx context.Context, record *domain.AssessmentRecord) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT pmid, title, abstract, journal, pub_date, authors, url
		FROM literature_references
		WHERE assessment_id = ?
		ORDER BY position
	`), record.ID)
	if err != nil {
		return fmt.Errorf("failed to query literature references: %w", err)
	}
	for rows.Next() {
		var ref domain.LiteratureArticle
		if err := rows.Scan(&ref.PMID, &ref.Title, &ref.Abstract, &ref.Journal, &ref.Date, &ref.Authors, &ref.URL); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan literature reference: %w", err)
		}
		ref.Keywords = []string{}
		ref.MeshTerms = []string{}
		record.Assessment.LiteratureReferences = append(record.Assessment.LiteratureReferences, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, s.rebind(`
		SELECT nct_id, title, status, phase, summary, start_date, completion_date, conditions, url
		FROM clinical_trials
		WHERE assessment_id = ?
		ORDER BY position
	`), record.ID)
	if err != nil {
		return fmt.Errorf("failed to query clinical trials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			trial      domain.ClinicalTrial
			conditions string
		)
		if err := rows.Scan(&trial.NCTID, &trial.Title, &trial.Status, &trial.Phase, &trial.Summary,
			&trial.StartDate, &trial.CompletionDate, &conditions, &trial.URL); err != nil {
			return fmt.Errorf("failed to scan clinical trial: %w", err)
		}
		if err := decodeJSONColumns(column{conditions, &trial.Conditions}); err != nil {
			return err
		}
		record.Assessment.ClinicalTrials = append(record.Assessment.ClinicalTrials, trial)
	}
	return rows.Err()
}

// SaveAppointment stores a follow-up appointment
func (s *SQLStore) SaveAppointment(ctx context.Context, appt *domain.Appointment) error {
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentPending
	}
	id, err := s.insertReturningID(ctx, s.db, `
		INSERT INTO appointments (
			patient_id, assessment_id, title, description, urgency_level, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableID(appt.PatientID), appt.AssessmentID, appt.Title, appt.Description,
		string(appt.UrgencyLevel), string(appt.Status), appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	appt.ID = id
	return nil
}

// ListAppointments returns a patient's appointments, newest first
func (s *SQLStore) ListAppointments(ctx context.Context, patientID int64) ([]domain.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, patient_id, assessment_id, title, description, urgency_level, status, created_at
		FROM appointments
		WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC
	`), patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	appts := []domain.Appointment{}
	for rows.Next() {
		var (
			a       domain.Appointment
			pid     sql.NullInt64
			urgency string
			status  string
		)
		if err := rows.Scan(&a.ID, &pid, &a.AssessmentID, &a.Title, &a.Description, &urgency, &status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		if pid.Valid {
			v := pid.Int64
			a.PatientID = &v
		}
		a.UrgencyLevel, _ = domain.ParseUrgencyLevel(urgency)
		a.Status = domain.AppointmentStatus(status)
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// Ping verifies the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type column struct {
	raw  string
	dest interface{}
}

func decodeJSONColumns(cols ...column) error {
	for _, c := range cols {
		raw := c.raw
		if raw == "" {
			raw = "[]"
		}
		if err := json.Unmarshal([]byte(raw), c.dest); err != nil {
			return fmt.Errorf("failed to decode JSON column: %w", err)
		}
	}
	return nil
}

func encodeJSONColumns(values ...interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON column: %w", err)
		}
		if string(data) == "null" {
			data = []byte("[]")
		}
		out[i] = string(data)
	}
	return out, nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
