package external

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-assessment-server/internal/domain"
)

func newTrialsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chest pain", r.URL.Query().Get("query.term"))
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTrialsClient(baseURL string) *ClinicalTrialsClient {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewClinicalTrialsClient(ClinicalTrialsConfig{BaseURL: baseURL, RateLimit: 1000}, logger)
}

func TestClinicalTrialsClient_Search(t *testing.T) {
	longSummary := strings.Repeat("a", 350)
	body := fmt.Sprintf(`{"studies":[
		{"protocolSection":{
			"identificationModule":{"nctId":"NCT001","briefTitle":"Chest Pain Study"},
			"statusModule":{"overallStatus":"RECRUITING","startDateStruct":{"date":"2024-01"},"completionDateStruct":{"date":"2026-06"}},
			"designModule":{"phases":["PHASE2","PHASE3"]},
			"conditionsModule":{"conditions":["Angina"]},
			"descriptionModule":{"briefSummary":%q}}},
		{"protocolSection":{
			"identificationModule":{"nctId":"NCT002","briefTitle":"Observational"},
			"statusModule":{"overallStatus":"COMPLETED"},
			"descriptionModule":{"briefSummary":"short"}}}
	]}`, longSummary)
	server := newTrialsServer(t, http.StatusOK, body)

	records := newTrialsClient(server.URL).Search(context.Background(), domain.RefinedQuery{Terms: "chest pain"}, 2)

	require.Len(t, records, 2)
	first := records[0].(domain.ClinicalTrial)
	assert.Equal(t, "NCT001", first.NCTID)
	assert.Equal(t, "Chest Pain Study", first.Title)
	assert.Equal(t, "RECRUITING", first.Status)
	assert.Equal(t, "PHASE2", first.Phase)
	assert.Equal(t, "2024-01", first.StartDate)
	assert.Equal(t, "2026-06", first.CompletionDate)
	assert.Equal(t, []string{"Angina"}, first.Conditions)
	assert.Equal(t, strings.Repeat("a", 297)+"...", first.Summary)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT001", first.URL)

	second := records[1].(domain.ClinicalTrial)
	assert.Equal(t, "N/A", second.Phase)
	assert.Equal(t, "", second.StartDate)
	assert.Equal(t, "", second.CompletionDate)
	assert.NotNil(t, second.Conditions)
	assert.Empty(t, second.Conditions)
	assert.Equal(t, "short", second.Summary)
}

func TestClinicalTrialsClient_Search_Deterministic(t *testing.T) {
	body := `{"studies":[{"protocolSection":{"identificationModule":{"nctId":"NCT9"}}}]}`
	server := newTrialsServer(t, http.StatusOK, body)
	client := newTrialsClient(server.URL)
	query := domain.RefinedQuery{Terms: "chest pain"}

	first := client.Search(context.Background(), query, 2)
	second := client.Search(context.Background(), query, 2)

	assert.Equal(t, first, second)
}

func TestClinicalTrialsClient_Search_Empty(t *testing.T) {
	server := newTrialsServer(t, http.StatusOK, `{"studies":[]}`)

	records := newTrialsClient(server.URL).Search(context.Background(), domain.RefinedQuery{Terms: "chest pain"}, 2)

	require.Len(t, records, 1)
	assert.Equal(t, domain.NoResults{Source: domain.SourceClinicalTrials, Query: "chest pain"}, records[0])
}

func TestClinicalTrialsClient_Search_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream down"},
		{name: "malformed body", status: http.StatusOK, body: `{"studies":[{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTrialsServer(t, tt.status, tt.body)

			records := newTrialsClient(server.URL).Search(context.Background(), domain.RefinedQuery{Terms: "chest pain"}, 2)

			require.Len(t, records, 1)
			sourceErr, ok := records[0].(domain.SourceError)
			require.True(t, ok)
			assert.Equal(t, domain.SourceClinicalTrials, sourceErr.Source)
		})
	}
}

func TestTruncateSummary(t *testing.T) {
	assert.Equal(t, "", truncateSummary(""))
	assert.Equal(t, strings.Repeat("b", 300), truncateSummary(strings.Repeat("b", 300)))
	assert.Len(t, []rune(truncateSummary(strings.Repeat("é", 301))), 300)
}
