package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
	"github.com/symptom-assessment-server/internal/logging"
	"github.com/symptom-assessment-server/internal/service"
)

const (
	maxSymptomsLength = 10000
	maxAge            = 150
	maxListLimit      = 200
	maxSessionIDLen   = 128
)

// AssessRequest is the body of POST /api/ai/assess-symptoms
type AssessRequest struct {
	Symptoms       string `json:"symptoms"`
	Age            *int   `json:"age,omitempty"`
	Sex            string `json:"sex,omitempty"`
	MedicalHistory string `json:"medical_history,omitempty"`
	PatientID      *int64 `json:"patient_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

// Validate checks the request shape
func (r *AssessRequest) Validate() *domain.ValidationError {
	symptoms := strings.TrimSpace(r.Symptoms)
	if symptoms == "" {
		return domain.NewValidationError("symptoms", "symptoms are required", r.Symptoms)
	}
	if utf8.RuneCountInString(symptoms) > maxSymptomsLength {
		return domain.NewValidationError("symptoms", fmt.Sprintf("must be at most %d characters", maxSymptomsLength), nil)
	}
	if r.Age != nil && (*r.Age < 0 || *r.Age > maxAge) {
		return domain.NewValidationError("age", fmt.Sprintf("must be between 0 and %d", maxAge), *r.Age)
	}
	if r.PatientID != nil && *r.PatientID <= 0 {
		return domain.NewValidationError("patient_id", "must be a positive integer", *r.PatientID)
	}
	if len(r.SessionID) > maxSessionIDLen {
		return domain.NewValidationError("session_id", fmt.Sprintf("must be at most %d characters", maxSessionIDLen), nil)
	}
	return nil
}

// handleAssessSymptoms runs the pipeline. The response is always an
// Assessment; persisted ones are answered with 201 and a Location header.
func (s *Server) handleAssessSymptoms(c *gin.Context) {
	var req AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(c, domain.NewValidationError("body", "invalid JSON body", nil)))
		return
	}
	if verr := req.Validate(); verr != nil {
		c.JSON(http.StatusBadRequest, validationBody(c, verr))
		return
	}

	ctx := c.Request.Context()
	log := logging.Entry(ctx, s.logger)

	input := domain.SymptomInput{
		RawText:        strings.TrimSpace(req.Symptoms),
		Age:            req.Age,
		Sex:            req.Sex,
		MedicalHistory: req.MedicalHistory,
	}

	profile, err := s.resolveProfile(c, &req)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody(c, "patient not found"))
		return
	}
	if err != nil {
		log.WithError(err).Warn("Profile lookup failed, continuing without profile")
	}
	input.SessionID = historyKey(profile, strings.TrimSpace(req.SessionID))
	if profile != nil {
		input = service.EnrichFromProfile(input, profile)
		docs, err := s.store.ListDocuments(ctx, profile.ID)
		if err != nil {
			log.WithError(err).Warn("Document lookup failed, continuing without documents")
		} else {
			input.Documents = service.DocumentExcerpts(docs, s.docLimit)
		}
	}

	assessment := s.assessor.Assess(ctx, input)

	if s.store == nil || !assessment.IsMedicalQuery || assessment.Degraded() {
		c.JSON(http.StatusOK, assessment)
		return
	}

	record := &domain.AssessmentRecord{
		Symptoms:   input.RawText,
		Assessment: *assessment,
	}
	if profile != nil {
		id := profile.ID
		record.PatientID = &id
	}
	if err := s.store.SaveAssessment(ctx, record); err != nil {
		log.WithError(err).Error("Failed to persist assessment")
		c.JSON(http.StatusOK, assessment)
		return
	}

	s.scheduleFollowUp(c, log, record)

	c.Header("Location", fmt.Sprintf("/api/ai/assessments/%d", record.ID))
	c.JSON(http.StatusCreated, assessment)
}

// historyKey scopes conversation replay to the resolved patient and, when
// given, the caller's session. With neither the request is stateless.
func historyKey(profile *domain.PatientProfile, sessionID string) string {
	switch {
	case profile != nil && sessionID != "":
		return fmt.Sprintf("patient:%d/session:%s", profile.ID, sessionID)
	case profile != nil:
		return fmt.Sprintf("patient:%d", profile.ID)
	case sessionID != "":
		return "session:" + sessionID
	default:
		return ""
	}
}

// resolveProfile finds the patient by explicit id, or by the name in a
// "Patient <first> <last> reports:" message.
func (s *Server) resolveProfile(c *gin.Context, req *AssessRequest) (*domain.PatientProfile, error) {
	if s.store == nil {
		return nil, nil
	}
	ctx := c.Request.Context()
	if req.PatientID != nil {
		return s.store.GetProfile(ctx, *req.PatientID)
	}

	first, last, ok := service.ReportedPatientName(req.Symptoms)
	if !ok {
		return nil, nil
	}
	profile, err := s.store.FindProfileByName(ctx, first, last)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}

func (s *Server) scheduleFollowUp(c *gin.Context, log *logrus.Entry, record *domain.AssessmentRecord) {
	if record.PatientID == nil || !s.policy.ShouldSchedule(&record.Assessment) {
		return
	}
	appt := service.BuildAppointment(record)
	if err := s.store.SaveAppointment(c.Request.Context(), appt); err != nil {
		log.WithError(err).Error("Failed to create follow-up appointment")
		return
	}
	c.Header("X-Appointment-ID", strconv.FormatInt(appt.ID, 10))
	log.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"assessment_id":  record.ID,
		"urgency_level":  appt.UrgencyLevel,
	}).Info("Follow-up appointment created")
}

// handleListAssessments lists stored assessments, newest first
func (s *Server) handleListAssessments(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "assessment storage is disabled"))
		return
	}

	var patientID *int64
	if raw := c.Query("patient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, validationBody(c, domain.NewValidationError("patient_id", "must be a positive integer", raw)))
			return
		}
		patientID = &id
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			c.JSON(http.StatusBadRequest, validationBody(c, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxListLimit), raw)))
			return
		}
		limit = n
	}

	records, err := s.store.ListAssessments(c.Request.Context(), patientID, limit)
	if err != nil {
		logging.Entry(c.Request.Context(), s.logger).WithError(err).Error("Failed to list assessments")
		c.JSON(http.StatusInternalServerError, errorBody(c, "failed to list assessments"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": records,
		"count":       len(records),
	})
}

// handleGetAssessment returns one stored assessment
func (s *Server) handleGetAssessment(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "assessment storage is disabled"))
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, validationBody(c, domain.NewValidationError("id", "must be a positive integer", c.Param("id"))))
		return
	}

	record, err := s.store.GetAssessment(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody(c, "assessment not found"))
		return
	}
	if err != nil {
		logging.Entry(c.Request.Context(), s.logger).WithError(err).Error("Failed to load assessment")
		c.JSON(http.StatusInternalServerError, errorBody(c, "failed to load assessment"))
		return
	}

	c.JSON(http.StatusOK, record)
}
