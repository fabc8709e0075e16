package service

import (
	"regexp"
	"strings"

	"github.com/symptom-assessment-server/internal/domain"
)

const (
	// PatientReportPattern matches messages written as "Patient <name> reports: <symptoms>".
	PatientReportPattern = `(?i)\bPatient ([\w\s]+?) reports:\s*`

	// StopWordPattern lists conversational filler removed before search.
	StopWordPattern = `(?i)\b(have|has|having|experiencing|suffering|from|with|and|the|is|are|my|I|feel|feeling|patient)\b`

	// PunctuationPattern lists characters dropped from search terms.
	PunctuationPattern = `[?!.,;:]`
)

// CommonSymptoms is the vocabulary used to build a title/abstract-restricted literature query.
var CommonSymptoms = []string{
	"headache", "migraine", "chest pain", "abdominal pain", "back pain",
	"shortness of breath", "dyspnea", "fever", "cough", "nausea",
	"vomiting", "diarrhea", "dizziness", "vertigo", "fatigue",
	"weakness", "numbness", "tingling", "rash", "swelling", "edema",
	"hypertension", "high blood pressure", "low blood pressure", "hypotension",
	"tachycardia", "bradycardia", "arrhythmia", "palpitations",
	"insomnia", "anxiety", "depression", "confusion",
}

var (
	patientReportRe = regexp.MustCompile(PatientReportPattern)
	stopWordRe      = regexp.MustCompile(StopWordPattern)
	punctuationRe   = regexp.MustCompile(PunctuationPattern)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	symptomRes      = compileSymptoms(CommonSymptoms)
)

func compileSymptoms(symptoms []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(symptoms))
	for i, s := range symptoms {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(s) + `\b`)
	}
	return res
}

// RefineQuery reduces raw symptom text to search terms. It is pure and
// idempotent on text without stop words or punctuation.
func RefineQuery(raw string) domain.RefinedQuery {
	text := raw
	if loc := patientReportRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}

	text = stopWordRe.ReplaceAllString(text, " ")
	text = punctuationRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

	if text == "" {
		return domain.RefinedQuery{IsEmpty: true}
	}

	return domain.RefinedQuery{
		Terms:    text,
		Symptoms: matchSymptoms(text),
	}
}

func matchSymptoms(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for i, re := range symptomRes {
		if re.MatchString(lower) {
			found = append(found, CommonSymptoms[i])
		}
	}
	return found
}

// ReportedPatientName returns the first and last name from a
// "Patient <first> <last...> reports:" message. ok is false when the message
// does not use that form or names a single word.
func ReportedPatientName(raw string) (first, last string, ok bool) {
	m := patientReportRe.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	parts := strings.Fields(m[1])
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], strings.Join(parts[1:], " "), true
}
