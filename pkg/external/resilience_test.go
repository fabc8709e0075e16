package external

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-assessment-server/internal/domain"
)

type stubSource struct {
	name    domain.EvidenceSourceName
	records []domain.EvidenceRecord
	calls   atomic.Int32
}

func (s *stubSource) Name() domain.EvidenceSourceName { return s.name }

func (s *stubSource) Search(ctx context.Context, query domain.RefinedQuery, maxResults int) []domain.EvidenceRecord {
	s.calls.Add(1)
	return s.records
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestResilientSource_OpensAfterFailures(t *testing.T) {
	source := &stubSource{
		name:    domain.SourcePubMed,
		records: []domain.EvidenceRecord{domain.SourceError{Source: domain.SourcePubMed, Query: "q", Reason: "status 503"}},
	}
	var transitions []gobreaker.State
	resilient := NewResilientSource(source, CircuitBreakerConfig{
		Timeout: time.Hour,
		OnStateChange: func(name string, from, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}, quietLogger())
	query := domain.RefinedQuery{Terms: "q"}

	for i := 0; i < 2; i++ {
		records := resilient.Search(context.Background(), query, 3)
		require.Len(t, records, 1)
		assert.Equal(t, "status 503", records[0].(domain.SourceError).Reason)
	}
	assert.Equal(t, gobreaker.StateOpen, resilient.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	records := resilient.Search(context.Background(), query, 3)
	require.Len(t, records, 1)
	sourceErr := records[0].(domain.SourceError)
	assert.Equal(t, ReasonCircuitOpen, sourceErr.Reason)
	assert.Equal(t, domain.SourcePubMed, sourceErr.Source)
	assert.Equal(t, int32(2), source.calls.Load(), "open breaker must not call the source")
}

func TestResilientSource_CallerCancellation(t *testing.T) {
	failing := []domain.EvidenceRecord{domain.SourceError{Source: domain.SourcePubMed, Query: "q", Reason: "context canceled"}}

	cancelled := func() context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	callerDeadline := func() context.Context {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		t.Cleanup(cancel)
		return ctx
	}
	sourceTimeout := func() context.Context {
		ctx, cancel := context.WithDeadlineCause(context.Background(), time.Now().Add(-time.Second), domain.ErrSourceTimeout)
		t.Cleanup(cancel)
		return ctx
	}

	tests := []struct {
		name  string
		ctx   func() context.Context
		state gobreaker.State
	}{
		{name: "cancelled by caller", ctx: cancelled, state: gobreaker.StateClosed},
		{name: "caller deadline", ctx: callerDeadline, state: gobreaker.StateClosed},
		{name: "source timeout", ctx: sourceTimeout, state: gobreaker.StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &stubSource{name: domain.SourcePubMed, records: failing}
			resilient := NewResilientSource(source, CircuitBreakerConfig{Timeout: time.Hour}, quietLogger())

			for i := 0; i < 4; i++ {
				records := resilient.Search(tt.ctx(), domain.RefinedQuery{Terms: "q"}, 3)
				require.Len(t, records, 1)
				assert.Equal(t, domain.KindSourceError, records[0].Kind())
			}
			assert.Equal(t, tt.state, resilient.State())
		})
	}
}

func TestResilientSource_NoResultsIsSuccess(t *testing.T) {
	source := &stubSource{
		name:    domain.SourceClinicalTrials,
		records: []domain.EvidenceRecord{domain.NoResults{Source: domain.SourceClinicalTrials, Query: "q"}},
	}
	resilient := NewResilientSource(source, CircuitBreakerConfig{}, quietLogger())

	for i := 0; i < 5; i++ {
		records := resilient.Search(context.Background(), domain.RefinedQuery{Terms: "q"}, 3)
		assert.Equal(t, domain.KindNoResults, records[0].Kind())
	}
	assert.Equal(t, gobreaker.StateClosed, resilient.State())
	assert.Equal(t, domain.SourceClinicalTrials, resilient.Name())
}

func TestEvidenceCache_MemoryTier(t *testing.T) {
	cache, err := NewEvidenceCache(domain.CacheConfig{MemorySize: 10, MemoryTTL: time.Minute}, quietLogger())
	require.NoError(t, err)
	defer cache.Close()

	key := CacheKey(domain.SourcePubMed, domain.RefinedQuery{Terms: "fever"}, 3)
	_, ok := cache.Get(context.Background(), key)
	assert.False(t, ok)

	records := []domain.EvidenceRecord{domain.LiteratureArticle{PMID: "1", Title: "Fever"}}
	cache.Set(context.Background(), key, records)

	cached, ok := cache.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, records, cached)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.MemoryMisses)
	assert.Equal(t, int64(1), stats.Stores)
	assert.NoError(t, cache.Ping(context.Background()))
}

func TestEvidenceCache_SkipsSourceErrors(t *testing.T) {
	cache, err := NewEvidenceCache(domain.CacheConfig{}, quietLogger())
	require.NoError(t, err)

	cache.Set(context.Background(), "k", []domain.EvidenceRecord{domain.SourceError{Source: domain.SourcePubMed, Reason: "timeout"}})
	cache.Set(context.Background(), "empty", nil)

	assert.Equal(t, 0, cache.Len())
}

func TestEvidenceCache_InvalidRedisURL(t *testing.T) {
	_, err := NewEvidenceCache(domain.CacheConfig{RedisURL: "not-a-url"}, quietLogger())

	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	base := CacheKey(domain.SourcePubMed, domain.RefinedQuery{Terms: "fever"}, 3)

	assert.Equal(t, base, CacheKey(domain.SourcePubMed, domain.RefinedQuery{Terms: "fever"}, 3))
	assert.NotEqual(t, base, CacheKey(domain.SourceClinicalTrials, domain.RefinedQuery{Terms: "fever"}, 3))
	assert.NotEqual(t, base, CacheKey(domain.SourcePubMed, domain.RefinedQuery{Terms: "fever"}, 5))
	assert.Contains(t, base, "evidence:pubmed:")
}

func TestCachedSource_ServesRepeatSearches(t *testing.T) {
	cache, err := NewEvidenceCache(domain.CacheConfig{}, quietLogger())
	require.NoError(t, err)
	source := &stubSource{
		name:    domain.SourceClinicalTrials,
		records: []domain.EvidenceRecord{domain.ClinicalTrial{NCTID: "NCT1"}},
	}
	cached := NewCachedSource(source, cache)
	query := domain.RefinedQuery{Terms: "rash"}

	first := cached.Search(context.Background(), query, 2)
	second := cached.Search(context.Background(), query, 2)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Equal(t, domain.SourceClinicalTrials, cached.Name())
}

func TestCachedSource_RetriesAfterFailure(t *testing.T) {
	cache, err := NewEvidenceCache(domain.CacheConfig{}, quietLogger())
	require.NoError(t, err)
	source := &stubSource{
		name:    domain.SourcePubMed,
		records: []domain.EvidenceRecord{domain.SourceError{Source: domain.SourcePubMed, Reason: "down"}},
	}
	cached := NewCachedSource(source, cache)

	cached.Search(context.Background(), domain.RefinedQuery{Terms: "rash"}, 2)
	cached.Search(context.Background(), domain.RefinedQuery{Terms: "rash"}, 2)

	assert.Equal(t, int32(2), source.calls.Load())
}
