package service

import (
	"fmt"
	"strings"

	"github.com/symptom-assessment-server/internal/domain"
)

// EnrichFromProfile fills missing demographics from a stored profile and appends
// the profile's clinical background to the medical history.
func EnrichFromProfile(input domain.SymptomInput, profile *domain.PatientProfile) domain.SymptomInput {
	if profile == nil {
		return input
	}

	if input.Age == nil && profile.Age != nil {
		age := *profile.Age
		input.Age = &age
	}
	if input.Sex == "" {
		input.Sex = profile.Gender
	}

	info := profileSummary(profile)
	if info == "" {
		return input
	}
	if input.MedicalHistory != "" {
		input.MedicalHistory = fmt.Sprintf("%s\n\nAdditional information from patient profile:\n%s", input.MedicalHistory, info)
	} else {
		input.MedicalHistory = "Information from patient profile:\n" + info
	}
	return input
}

func profileSummary(p *domain.PatientProfile) string {
	var lines []string
	if p.MedicalHistory != "" {
		lines = append(lines, "Medical History: "+p.MedicalHistory)
	}
	if len(p.ChronicConditions) > 0 {
		lines = append(lines, "Chronic Conditions: "+strings.Join(p.ChronicConditions, ", "))
	}
	if len(p.Allergies) > 0 {
		lines = append(lines, "Allergies: "+strings.Join(p.Allergies, ", "))
	}

	var meds []string
	for _, m := range p.Medications {
		if m.Name == "" {
			continue
		}
		meds = append(meds, strings.TrimSpace(strings.Join([]string{m.Name, m.Dosage, m.Frequency}, " ")))
	}
	if len(meds) > 0 {
		lines = append(lines, "Medications: "+strings.Join(meds, ", "))
	}

	var surgeries []string
	for _, s := range p.SurgicalHistory {
		if s.Procedure == "" {
			continue
		}
		if s.Date != "" {
			surgeries = append(surgeries, fmt.Sprintf("%s (%s)", s.Procedure, s.Date))
		} else {
			surgeries = append(surgeries, s.Procedure)
		}
	}
	if len(surgeries) > 0 {
		lines = append(lines, "Surgical History: "+strings.Join(surgeries, ", "))
	}

	return strings.Join(lines, "\n")
}

// DocumentExcerpts converts stored documents with extracted text into bounded excerpts.
func DocumentExcerpts(docs []domain.StoredDocument, limit int) []domain.DocumentExcerpt {
	var out []domain.DocumentExcerpt
	for _, d := range docs {
		if strings.TrimSpace(d.ContentText) == "" {
			continue
		}
		label := fmt.Sprintf("%s (%s)", d.Filename, d.FileType)
		out = append(out, domain.NewDocumentExcerpt(fmt.Sprint(d.ID), label, d.ContentText, limit))
	}
	return out
}
