package candidate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"candidate-service/internal/metrics"
	"candidate-service/internal/upload"
)

// Publisher delivers candidate events to a broker. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type CreatedEvent struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CVURL     *string   `json:"cvUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service interface {
	// StoreCV writes an uploaded CV to disk. The caller must hand the result to
	// CreateCandidate or DiscardCV.
	StoreCV(ctx context.Context, file upload.Incoming) (*upload.StoredFile, error)
	DiscardCV(ctx context.Context, cv *upload.StoredFile)
	// CreateCandidate validates in and persists it. On failure cv is removed.
	CreateCandidate(ctx context.Context, in Input, cv *upload.StoredFile) (*Candidate, error)
	GetAllCandidates(ctx context.Context) ([]Candidate, error)
	GetCandidateByID(ctx context.Context, id int) (*Candidate, error)
}

type service struct {
	repo      Repository
	store     *upload.Store
	validator *Validator
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewService wires the intake pipeline. publisher may be nil when events are disabled.
func NewService(repo Repository, store *upload.Store, validator *Validator, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) Service {
	return &service{
		repo:      repo,
		store:     store,
		validator: validator,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
	}
}

func (s *service) StoreCV(ctx context.Context, file upload.Incoming) (*upload.StoredFile, error) {
	stored, err := s.store.Save(ctx, file)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCVStored(ctx, stored.Size)
	return stored, nil
}

func (s *service) DiscardCV(ctx context.Context, cv *upload.StoredFile) {
	if cv == nil {
		return
	}
	if err := s.store.Remove(cv.Name); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove orphaned cv", "file", cv.Name, "error", err)
		return
	}
	s.metrics.RecordOrphanRemoved(ctx)
	s.logger.InfoContext(ctx, "removed orphaned cv", "file", cv.Name)
}

func (s *service) CreateCandidate(ctx context.Context, in Input, cv *upload.StoredFile) (*Candidate, error) {
	prepared, err := s.validator.Prepare(in)
	if err != nil {
		s.DiscardCV(ctx, cv)
		return nil, err
	}

	// The unique constraint stays authoritative; this only avoids an insert for the common case.
	if _, err := s.repo.GetByEmail(ctx, prepared.Email); err == nil {
		s.DiscardCV(ctx, cv)
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrCandidateNotFound) {
		s.DiscardCV(ctx, cv)
		return nil, err
	}

	candidate := prepared.ToCandidate()
	if cv != nil {
		url := cv.URL
		candidate.CVURL = &url
	}

	created, err := s.repo.Create(ctx, candidate)
	if err != nil {
		s.DiscardCV(ctx, cv)
		return nil, err
	}

	s.metrics.RecordCandidateCreated(ctx, cv != nil)
	s.logger.InfoContext(ctx, "candidate created",
		"candidate_id", created.ID,
		"email", MaskEmail(created.Email),
		"with_cv", cv != nil,
	)

	s.publishCreated(ctx, created)
	return created, nil
}

func (s *service) GetAllCandidates(ctx context.Context) ([]Candidate, error) {
	return s.repo.GetAll(ctx)
}

func (s *service) GetCandidateByID(ctx context.Context, id int) (*Candidate, error) {
	if id <= 0 {
		return nil, ErrCandidateNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// publishCreated is best-effort: failures are logged and counted, never returned.
func (s *service) publishCreated(ctx context.Context, c *Candidate) {
	if s.publisher == nil {
		return
	}

	event := CreatedEvent{
		ID:        c.ID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		CVURL:     c.CVURL,
		CreatedAt: c.CreatedAt,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, strconv.Itoa(c.ID), event); err != nil {
		s.metrics.RecordEventFailed(ctx)
		s.logger.WarnContext(ctx, "failed to publish candidate event", "candidate_id", c.ID, "error", err)
	}
}
