package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the business counters of the candidate service.
type Metrics struct {
	candidatesCreated  metric.Int64Counter
	candidatesRejected metric.Int64Counter
	candidatesViewed   metric.Int64Counter
	listViewed         metric.Int64Counter
	cvStored           metric.Int64Counter
	cvBytes            metric.Int64Histogram
	orphansRemoved     metric.Int64Counter
	eventsFailed       metric.Int64Counter
	retentionDeleted   metric.Int64Counter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.candidatesCreated, err = meter.Int64Counter(
		"candidate_service.candidates.created",
		metric.WithDescription("Total number of candidates created"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	m.candidatesRejected, err = meter.Int64Counter(
		"candidate_service.candidates.rejected",
		metric.WithDescription("Create requests rejected, by reason"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.candidatesViewed, err = meter.Int64Counter(
		"candidate_service.candidates.viewed",
		metric.WithDescription("Total number of candidates viewed"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return nil, err
	}

	m.listViewed, err = meter.Int64Counter(
		"candidate_service.candidates.list_viewed",
		metric.WithDescription("Total number of times the candidate list was viewed"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return nil, err
	}

	m.cvStored, err = meter.Int64Counter(
		"candidate_service.cv.stored",
		metric.WithDescription("Total number of CV files stored"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	m.cvBytes, err = meter.Int64Histogram(
		"candidate_service.cv.size",
		metric.WithDescription("Size of stored CV files"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(16<<10, 64<<10, 256<<10, 1<<20, 2<<20, 5<<20),
	)
	if err != nil {
		return nil, err
	}

	m.orphansRemoved, err = meter.Int64Counter(
		"candidate_service.cv.orphans_removed",
		metric.WithDescription("Stored CV files removed because the request failed afterwards"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	m.eventsFailed, err = meter.Int64Counter(
		"candidate_service.events.failed",
		metric.WithDescription("Candidate events that could not be published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.retentionDeleted, err = meter.Int64Counter(
		"candidate_service.retention.deleted",
		metric.WithDescription("Candidates deleted by the retention sweep"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordCandidateCreated(ctx context.Context, withCV bool) {
	if m != nil && m.candidatesCreated != nil {
		m.candidatesCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("with_cv", withCV)))
	}
}

// RecordCandidateRejected counts a failed create; reason is a short label such as "validation".
func (m *Metrics) RecordCandidateRejected(ctx context.Context, reason string) {
	if m != nil && m.candidatesRejected != nil {
		m.candidatesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *Metrics) RecordCandidateViewed(ctx context.Context) {
	if m != nil && m.candidatesViewed != nil {
		m.candidatesViewed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordCandidatesListViewed(ctx context.Context) {
	if m != nil && m.listViewed != nil {
		m.listViewed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordCVStored(ctx context.Context, size int64) {
	if m != nil && m.cvStored != nil {
		m.cvStored.Add(ctx, 1)
		m.cvBytes.Record(ctx, size)
	}
}

func (m *Metrics) RecordOrphanRemoved(ctx context.Context) {
	if m != nil && m.orphansRemoved != nil {
		m.orphansRemoved.Add(ctx, 1)
	}
}

func (m *Metrics) RecordEventFailed(ctx context.Context) {
	if m != nil && m.eventsFailed != nil {
		m.eventsFailed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordRetentionDeleted(ctx context.Context, n int) {
	if m != nil && m.retentionDeleted != nil && n > 0 {
		m.retentionDeleted.Add(ctx, int64(n))
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}
