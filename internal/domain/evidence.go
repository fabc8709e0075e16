package domain

import (
	"encoding/json"
	"fmt"
)

// EvidenceKind tags the variants of EvidenceRecord
type EvidenceKind string

const (
	KindLiteratureArticle EvidenceKind = "literature_article"
	KindClinicalTrial     EvidenceKind = "clinical_trial"
	KindNoResults         EvidenceKind = "no_results"
	KindSourceError       EvidenceKind = "source_error"
)

// EvidenceSourceName identifies which external index produced a record
type EvidenceSourceName string

const (
	SourcePubMed         EvidenceSourceName = "pubmed"
	SourceClinicalTrials EvidenceSourceName = "clinical_trials"
)

// EvidenceRecord is one retrieved item or a typed absence/failure marker.
// The set of implementations is closed to this package.
type EvidenceRecord interface {
	Kind() EvidenceKind
	isEvidence()
}

// LiteratureArticle is a parsed PubMed record
type LiteratureArticle struct {
	PMID      string   `json:"pmid"`
	Title     string   `json:"title"`
	Abstract  string   `json:"abstract"`
	Journal   string   `json:"journal"`
	Date      string   `json:"date"`
	Authors   string   `json:"authors"`
	Keywords  []string `json:"keywords"`
	MeshTerms []string `json:"mesh_terms"`
	URL       string   `json:"url"`
}

// ClinicalTrial is a flattened ClinicalTrials.gov study
type ClinicalTrial struct {
	NCTID          string   `json:"nct_id"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Phase          string   `json:"phase"`
	Summary        string   `json:"summary"`
	StartDate      string   `json:"start_date"`
	CompletionDate string   `json:"completion_date"`
	Conditions     []string `json:"conditions"`
	URL            string   `json:"url"`
}

// NoResults records that a source answered but matched nothing
type NoResults struct {
	Source EvidenceSourceName `json:"source"`
	Query  string             `json:"query"`
}

// SourceError records that a source could not be queried
type SourceError struct {
	Source EvidenceSourceName `json:"source"`
	Query  string             `json:"query"`
	Reason string             `json:"reason"`
}

func (LiteratureArticle) Kind() EvidenceKind { return KindLiteratureArticle }
func (ClinicalTrial) Kind() EvidenceKind     { return KindClinicalTrial }
func (NoResults) Kind() EvidenceKind         { return KindNoResults }
func (SourceError) Kind() EvidenceKind       { return KindSourceError }

func (LiteratureArticle) isEvidence() {}
func (ClinicalTrial) isEvidence()     {}
func (NoResults) isEvidence()         {}
func (SourceError) isEvidence()       {}

// EvidenceSummary partitions a record set by variant.
type EvidenceSummary struct {
	Articles []LiteratureArticle
	Trials   []ClinicalTrial
	Empty    []NoResults
	Failures []SourceError
}

// SummarizeEvidence splits records into their variants, preserving order.
func SummarizeEvidence(records []EvidenceRecord) EvidenceSummary {
	var s EvidenceSummary
	for _, r := range records {
		switch v := r.(type) {
		case LiteratureArticle:
			s.Articles = append(s.Articles, v)
		case ClinicalTrial:
			s.Trials = append(s.Trials, v)
		case NoResults:
			s.Empty = append(s.Empty, v)
		case SourceError:
			s.Failures = append(s.Failures, v)
		default:
			panic(fmt.Sprintf("unhandled evidence record %T", r))
		}
	}
	return s
}

// FirstSourceError returns the first failure marker in records, if any.
func FirstSourceError(records []EvidenceRecord) (SourceError, bool) {
	for _, r := range records {
		if se, ok := r.(SourceError); ok {
			return se, true
		}
	}
	return SourceError{}, false
}

type taggedRecord struct {
	Kind    EvidenceKind    `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalEvidence encodes records with their variant tag so they survive a cache round trip.
func MarshalEvidence(records []EvidenceRecord) ([]byte, error) {
	tagged := make([]taggedRecord, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", r.Kind(), err)
		}
		tagged = append(tagged, taggedRecord{Kind: r.Kind(), Payload: payload})
	}
	return json.Marshal(tagged)
}

// UnmarshalEvidence decodes the output of MarshalEvidence.
func UnmarshalEvidence(data []byte) ([]EvidenceRecord, error) {
	var tagged []taggedRecord
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	records := make([]EvidenceRecord, 0, len(tagged))
	for _, t := range tagged {
		var (
			rec EvidenceRecord
			err error
		)
		switch t.Kind {
		case KindLiteratureArticle:
			var v LiteratureArticle
			err = json.Unmarshal(t.Payload, &v)
			rec = v
		case KindClinicalTrial:
			var v ClinicalTrial
			err = json.Unmarshal(t.Payload, &v)
			rec = v
		case KindNoResults:
			var v NoResults
			err = json.Unmarshal(t.Payload, &v)
			rec = v
		case KindSourceError:
			var v SourceError
			err = json.Unmarshal(t.Payload, &v)
			rec = v
		default:
			return nil, fmt.Errorf("unknown evidence kind %q", t.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t.Kind, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
