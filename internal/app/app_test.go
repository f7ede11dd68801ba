package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"candidate-service/common/logger"
	"candidate-service/common/metrics"
	"candidate-service/internal/app"
	"candidate-service/internal/candidate"
	"candidate-service/internal/client"
	"candidate-service/internal/config"
	"candidate-service/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:    "test",
		Server: config.ServerConfig{Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		Uploads: config.UploadsConfig{
			Dir:          filepath.Join(t.TempDir(), "uploads"),
			PublicPrefix: "/uploads",
			MaxFileBytes: 5 * config.MiB,
		},
		Validation: config.ValidationConfig{EnforceEducation: true},
		Events:     config.EventsConfig{Driver: "none"},
		Retention:  config.RetentionConfig{Enabled: true, Days: 90, IntervalMinutes: 60},
	}
}

func TestApp_Shared(t *testing.T) {
	pgContainer := testdb.SetupSharedPostgres(t)
	defer pgContainer.Cleanup(t)

	cfg := testConfig(t)
	application, err := app.NewWithDB(context.Background(), cfg, logger.NewDiscard(), pgContainer.DB, metrics.NewMock())
	require.NoError(t, err)

	server := httptest.NewServer(application.Handler())
	defer server.Close()

	api := client.New(server.URL, server.Client())
	ctx := context.Background()

	t.Run("HealthAndReady", func(t *testing.T) {
		for _, path := range []string{"/health", "/ready"} {
			resp, err := http.Get(server.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})

	t.Run("SubmitListGetAndDownload", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "candidates")

		pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 1024)...)
		cvPath := filepath.Join(t.TempDir(), "resume.pdf")
		require.NoError(t, os.WriteFile(cvPath, pdf, 0o644))

		created, err := api.CreateCandidate(ctx, candidate.Input{
			FirstName: "Grace",
			LastName:  "Hopper",
			Email:     "grace@example.com",
			Education: "Master's Degree",
		}, client.FileAttachment(cvPath))
		require.NoError(t, err)
		require.NotNil(t, created.CVURL)

		list, err := api.ListCandidates(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, created.ID, list[0].ID)

		got, err := api.GetCandidate(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "grace@example.com", got.Email)

		resp, err := http.Get(server.URL + *created.CVURL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		served, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, pdf, served)
	})

	t.Run("DuplicateThroughClient", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "candidates")

		in := candidate.Input{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com"}
		_, err := api.CreateCandidate(ctx, in, nil)
		require.NoError(t, err)

		_, err = api.CreateCandidate(ctx, in, nil)
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Email already exists", apiErr.Message)
	})

	t.Run("UploadsDirectoryNotListed", func(t *testing.T) {
		for _, path := range []string{"/uploads/", "/uploads/.upload-123"} {
			resp, err := http.Get(server.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/candidates", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("UnwritableUploadsFailsStartup", func(t *testing.T) {
		bad := testConfig(t)
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
		bad.Uploads.Dir = filepath.Join(blocker, "uploads")

		_, err := app.NewWithDB(ctx, bad, logger.NewDiscard(), pgContainer.DB, metrics.NewMock())
		assert.Error(t, err)
	})

	t.Run("RunStopsOnCancel", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- application.Run(runCtx) }()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})
}
