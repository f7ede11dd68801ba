package candidate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"candidate-service/common/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const table = "candidates"

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type Repository interface {
	Create(ctx context.Context, candidate *Candidate) (*Candidate, error)
	GetAll(ctx context.Context) ([]Candidate, error)
	GetByID(ctx context.Context, id int) (*Candidate, error)
	GetByEmail(ctx context.Context, email string) (*Candidate, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]Candidate, error)
	Ping(ctx context.Context) error
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) Create(ctx context.Context, candidate *Candidate) (*Candidate, error) {
	start := time.Now()
	_, err := r.db.NewInsert().Model(candidate).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", table, time.Since(start), err)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert candidate: %w", err)
	}
	return candidate, nil
}

// GetAll returns every candidate, newest first.
func (r *repository) GetAll(ctx context.Context) ([]Candidate, error) {
	start := time.Now()
	candidates := make([]Candidate, 0)
	err := r.db.NewSelect().
		Model(&candidates).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return candidates, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Candidate, error) {
	start := time.Now()
	candidate := new(Candidate)
	err := r.db.NewSelect().Model(candidate).Where("id = ?", id).Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("failed to get candidate %d: %w", id, err)
	}
	return candidate, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*Candidate, error) {
	start := time.Now()
	candidate := new(Candidate)
	err := r.db.NewSelect().Model(candidate).Where("email = ?", email).Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("failed to get candidate by email: %w", err)
	}
	return candidate, nil
}

// DeleteCreatedBefore removes candidates created strictly before cutoff and returns them.
func (r *repository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]Candidate, error) {
	start := time.Now()
	deleted := make([]Candidate, 0)
	_, err := r.db.NewDelete().
		Model((*Candidate)(nil)).
		Where("created_at < ?", cutoff).
		Returning("*").
		Exec(ctx, &deleted)

	r.metrics.Database.RecordQuery(ctx, "delete", table, time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("failed to delete expired candidates: %w", err)
	}
	return deleted, nil
}

func (r *repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
