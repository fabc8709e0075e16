package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeEvidence(t *testing.T) {
	records := []EvidenceRecord{
		LiteratureArticle{PMID: "1", Title: "First"},
		NoResults{Source: SourceClinicalTrials, Query: "rash"},
		LiteratureArticle{PMID: "2", Title: "Second"},
		SourceError{Source: SourcePubMed, Query: "rash", Reason: "timeout"},
		ClinicalTrial{NCTID: "NCT00000001"},
	}

	s := SummarizeEvidence(records)

	require.Len(t, s.Articles, 2)
	assert.Equal(t, "1", s.Articles[0].PMID)
	assert.Equal(t, "2", s.Articles[1].PMID)
	assert.Len(t, s.Trials, 1)
	assert.Len(t, s.Empty, 1)
	assert.Len(t, s.Failures, 1)

	failure, ok := FirstSourceError(records)
	assert.True(t, ok)
	assert.Equal(t, "timeout", failure.Reason)

	_, ok = FirstSourceError(records[:3])
	assert.False(t, ok)
}

func TestEvidenceCodecPreservesVariants(t *testing.T) {
	records := []EvidenceRecord{
		LiteratureArticle{PMID: "123", Title: "Migraine", Keywords: []string{"pain"}},
		ClinicalTrial{NCTID: "NCT01", Conditions: []string{"Migraine"}},
		NoResults{Source: SourcePubMed, Query: "zzz"},
		SourceError{Source: SourceClinicalTrials, Reason: "503"},
	}

	data, err := MarshalEvidence(records)
	require.NoError(t, err)

	decoded, err := UnmarshalEvidence(data)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestUnmarshalEvidenceRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalEvidence([]byte(`[{"kind":"podcast","payload":{}}]`))
	assert.Error(t, err)
}
