package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"candidate-service/common/logger"
	"candidate-service/common/metrics"
	"candidate-service/internal/health"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *health.Handler, path string) (*httptest.ResponseRecorder, health.HealthResponse) {
	t.Helper()
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body health.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func ok(context.Context) error { return nil }

func TestHealth(t *testing.T) {
	h := health.NewHandler(logger.NewDiscard(), metrics.NewMock(), health.Check{
		Name:  "database",
		Check: func(context.Context) error { return errors.New("down") },
	})

	w, body := serve(t, h, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Status)
}

func TestReady(t *testing.T) {
	log := logger.NewDiscard()

	t.Run("AllDependenciesUp", func(t *testing.T) {
		h := health.NewHandler(log, metrics.NewMock(),
			health.Check{Name: "database", Check: ok},
			health.Check{Name: "uploads", Check: ok},
		)

		w, body := serve(t, h, "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, map[string]string{"database": "ok", "uploads": "ok"}, body.Checks)
		assert.Equal(t, []string{"database", "uploads"}, h.Names())
	})

	t.Run("DependencyDown", func(t *testing.T) {
		h := health.NewHandler(log, metrics.NewMock(),
			health.Check{Name: "database", Check: ok},
			health.Check{Name: "uploads", Check: func(context.Context) error { return errors.New("read-only file system") }},
		)

		w, body := serve(t, h, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not ready", body.Status)
		assert.Equal(t, "read-only file system", body.Checks["uploads"])
		assert.Equal(t, "ok", body.Checks["database"])
	})

	t.Run("CheckReceivesDeadline", func(t *testing.T) {
		h := health.NewHandler(log, metrics.NewMock(), health.Check{
			Name: "database",
			Check: func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); !ok {
					return errors.New("no deadline")
				}
				return nil
			},
		})

		w, _ := serve(t, h, "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
