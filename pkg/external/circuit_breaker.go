package external

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/symptom-assessment-server/internal/domain"
)

// ReasonCircuitOpen is the SourceError reason reported while a breaker rejects calls
const ReasonCircuitOpen = "circuit open"

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests   uint32        `json:"max_requests"`
	Interval      time.Duration `json:"interval"`
	Timeout       time.Duration `json:"timeout"`
	MinRequests   uint32        `json:"min_requests"`
	FailureRatio  float64       `json:"failure_ratio"`
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig trips after half of at least two requests fail
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      120 * time.Second,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
}

// errSourceFailed marks a Search that answered with a SourceError
type errSourceFailed struct {
	record domain.SourceError
}

func (e *errSourceFailed) Error() string { return e.record.Reason }

// ResilientSource guards an evidence source with a circuit breaker. Repeated
// SourceError answers open the breaker, after which calls short-circuit to a
// SourceError without touching the network.
type ResilientSource struct {
	source  domain.EvidenceSource
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientSource wraps source with a breaker named after it
func NewResilientSource(source domain.EvidenceSource, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientSource {
	if logger == nil {
		logger = logrus.New()
	}
	defaults := DefaultCircuitBreakerConfig()
	if config.MaxRequests == 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MinRequests == 0 {
		config.MinRequests = defaults.MinRequests
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = defaults.FailureRatio
	}

	onStateChange := config.OnStateChange
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(source.Name()),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	})

	return &ResilientSource{source: source, breaker: breaker, logger: logger}
}

// Name implements domain.EvidenceSource
func (r *ResilientSource) Name() domain.EvidenceSourceName {
	return r.source.Name()
}

// Search implements domain.EvidenceSource. A failure caused by the caller
// cancelling ctx is returned as is but does not count against the breaker.
func (r *ResilientSource) Search(ctx context.Context, query domain.RefinedQuery, maxResults int) []domain.EvidenceRecord {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		records := r.source.Search(ctx, query, maxResults)
		se, ok := domain.FirstSourceError(records)
		if !ok {
			return records, nil
		}
		if callerAborted(ctx) {
			r.logger.WithFields(logrus.Fields{
				"source": r.source.Name(),
				"reason": se.Reason,
			}).Debug("Search aborted by caller, not counted as a source failure")
			return records, nil
		}
		return records, &errSourceFailed{record: se}
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return []domain.EvidenceRecord{domain.SourceError{
			Source: r.source.Name(),
			Query:  query.Terms,
			Reason: ReasonCircuitOpen,
		}}
	}

	records, _ := result.([]domain.EvidenceRecord)
	return records
}

// callerAborted reports whether ctx ended for a reason other than the
// source's own timeout.
func callerAborted(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	return !errors.Is(context.Cause(ctx), domain.ErrSourceTimeout)
}

// State reports the breaker state for health checks
func (r *ResilientSource) State() gobreaker.State {
	return r.breaker.State()
}
