package candidate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"candidate-service/common/httputil"
	"candidate-service/internal/metrics"
	"candidate-service/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// CVField is the only multipart field that may carry a file.
	CVField = "cv"

	// formOverhead is the room left for text fields and multipart framing on top of the file ceiling.
	formOverhead = 1 << 20

	maxFieldBytes = 64 << 10
)

type Handler struct {
	service      Service
	maxFileBytes int64
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func NewHandler(service Service, maxFileBytes int64, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	if maxFileBytes <= 0 {
		maxFileBytes = upload.DefaultMaxBytes
	}
	return &Handler{
		service:      service,
		maxFileBytes: maxFileBytes,
		logger:       logger,
		metrics:      metrics,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/api/candidates", h.CreateCandidate)
	router.Get("/api/candidates", h.GetAllCandidates)
	router.Get("/api/candidates/{id}", h.GetCandidate)
}

// CreateCandidate streams the multipart body part by part. A CV part is
// written to disk as it arrives, so every failure after that point must
// discard it.
func (h *Handler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+formOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		h.handleServiceError(w, r, invalid("", "Request must be multipart/form-data"))
		return
	}

	fields := make(map[string]string)
	var cv *upload.StoredFile

	fail := func(err error) {
		h.service.DiscardCV(ctx, cv)
		h.handleServiceError(w, r, err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(h.bodyError(err))
			return
		}

		name := part.FormName()
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			part.Close()
			if err != nil {
				fail(h.bodyError(err))
				return
			}
			if len(value) > maxFieldBytes {
				fail(invalid(name, fmt.Sprintf("Field %s is too long", name)))
				return
			}
			fields[name] = string(value)
			continue
		}

		if name != CVField {
			part.Close()
			fail(upload.Reject("Unexpected file field %q, only %q is accepted", name, CVField))
			return
		}
		if cv != nil {
			part.Close()
			fail(upload.Reject("Only one file may be uploaded"))
			return
		}

		cv, err = h.service.StoreCV(ctx, upload.Incoming{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		part.Close()
		if errors.Is(err, upload.ErrMalformedBody) {
			fail(h.bodyError(err))
			return
		}
		if err != nil {
			fail(err)
			return
		}
	}

	in, err := inputFromForm(fields)
	if err != nil {
		fail(err)
		return
	}

	h.logger.InfoContext(ctx, "creating candidate", "email", MaskEmail(in.Email), "with_cv", cv != nil)
	created, err := h.service.CreateCandidate(ctx, in, cv)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetAllCandidates(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "fetching all candidates")

	candidates, err := h.service.GetAllCandidates(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordCandidatesListViewed(r.Context())
	httputil.RespondWithJSON(w, http.StatusOK, candidates)
}

func (h *Handler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, MsgInvalidID)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching candidate by ID", "candidate_id", id)
	candidate, err := h.service.GetCandidateByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordCandidateViewed(r.Context())
	httputil.RespondWithJSON(w, http.StatusOK, candidate)
}

func inputFromForm(fields map[string]string) (Input, error) {
	in := Input{
		FirstName:      fields["firstName"],
		LastName:       fields["lastName"],
		Email:          fields["email"],
		PhoneNumber:    fields["phoneNumber"],
		Address:        fields["address"],
		Education:      fields["education"],
		WorkExperience: fields["workExperience"],
	}

	if raw := strings.TrimSpace(fields["experienceYears"]); raw != "" {
		years, err := strconv.Atoi(raw)
		if err != nil {
			return Input{}, invalid("experienceYears", "Experience years must be between 0 and 80")
		}
		in.ExperienceYears = &years
	}
	return in, nil
}

// bodyError classifies a failure while reading the request body.
func (h *Handler) bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return upload.Policy{MaxBytes: h.maxFileBytes}.CheckSize(h.maxFileBytes + 1)
	}
	return invalid("", "Malformed multipart body")
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var validationErr *ValidationError
	var rejectedErr *upload.RejectedError

	switch {
	case errors.As(err, &validationErr):
		h.metrics.RecordCandidateRejected(ctx, "validation")
		h.logger.InfoContext(ctx, "validation failed", "field", validationErr.Field, "reason", validationErr.Message)
		httputil.RespondWithError(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &rejectedErr):
		h.metrics.RecordCandidateRejected(ctx, "file")
		h.logger.InfoContext(ctx, "file rejected", "reason", rejectedErr.Reason)
		httputil.RespondWithError(w, http.StatusBadRequest, rejectedErr.Reason)
	case errors.Is(err, ErrDuplicateEmail):
		h.metrics.RecordCandidateRejected(ctx, "duplicate_email")
		h.logger.InfoContext(ctx, "duplicate email")
		httputil.RespondWithError(w, http.StatusBadRequest, MsgDuplicateEmail)
	case errors.Is(err, ErrCandidateNotFound):
		h.logger.InfoContext(ctx, "candidate not found")
		httputil.RespondWithError(w, http.StatusNotFound, MsgNotFound)
	default:
		h.logger.ErrorContext(ctx, "internal error",
			"error", err,
			"storage_unavailable", errors.Is(err, ErrStorageUnavailable),
			"path", r.URL.Path,
			"method", r.Method,
			"request_id", middleware.GetReqID(ctx),
		)
		httputil.RespondWithError(w, http.StatusInternalServerError, MsgInternal)
	}
}
