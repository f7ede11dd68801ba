package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"candidate-service/common/httputil"
	"candidate-service/internal/candidate"
	"candidate-service/internal/client"
	"candidate-service/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateCandidate(t *testing.T) {
	var (
		gotFields map[string][]string
		gotFile   []byte
		gotName   string
		gotType   string
	)

	router := chi.NewRouter()
	router.Post("/api/candidates", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		gotFields = r.MultipartForm.Value

		if files := r.MultipartForm.File["cv"]; len(files) == 1 {
			gotName = files[0].Filename
			gotType = files[0].Header.Get("Content-Type")
			if f, err := files[0].Open(); err == nil {
				gotFile, _ = io.ReadAll(f)
				f.Close()
			}
		}

		if r.FormValue("email") == "taken@example.com" {
			httputil.RespondWithError(w, http.StatusBadRequest, candidate.MsgDuplicateEmail)
			return
		}
		if r.FormValue("email") == "boom@example.com" {
			httputil.RespondWithError(w, http.StatusInternalServerError, candidate.MsgInternal)
			return
		}

		url := "/uploads/123-abc-" + gotName
		httputil.RespondWithJSON(w, http.StatusCreated, candidate.Candidate{
			ID:        7,
			FirstName: r.FormValue("firstName"),
			LastName:  r.FormValue("lastName"),
			Email:     r.FormValue("email"),
			CVURL:     &url,
			CreatedAt: time.Now(),
		})
	})
	server := httptest.NewServer(router)
	defer server.Close()

	c := client.New(server.URL+"/", nil)
	ctx := context.Background()

	t.Run("SendsFieldsAndFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "resume.docx")
		require.NoError(t, os.WriteFile(path, []byte("docx-bytes"), 0o644))

		years := 4
		created, err := c.CreateCandidate(ctx, candidate.Input{
			FirstName:       "Ada",
			LastName:        "Lovelace",
			Email:           "ada@example.com",
			PhoneNumber:     "+44 20 7946 0958",
			ExperienceYears: &years,
		}, client.FileAttachment(path))
		require.NoError(t, err)

		assert.Equal(t, 7, created.ID)
		assert.Equal(t, "/uploads/123-abc-resume.docx", *created.CVURL)
		assert.Equal(t, []string{"Ada"}, gotFields["firstName"])
		assert.Equal(t, []string{"+44 20 7946 0958"}, gotFields["phoneNumber"])
		assert.Equal(t, []string{"4"}, gotFields["experienceYears"])
		assert.NotContains(t, gotFields, "address", "empty fields are omitted")
		assert.Equal(t, "resume.docx", gotName)
		assert.Equal(t, upload.MIMEDOCX, gotType)
		assert.Equal(t, []byte("docx-bytes"), gotFile)
	})

	t.Run("WithoutFile", func(t *testing.T) {
		gotName = ""
		created, err := c.CreateCandidate(ctx, candidate.Input{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Alan", created.FirstName)
		assert.Empty(t, gotName)
	})

	t.Run("ClientErrorIsNotTemporary", func(t *testing.T) {
		_, err := c.CreateCandidate(ctx, candidate.Input{FirstName: "Ada", LastName: "Again", Email: "taken@example.com"}, nil)
		require.Error(t, err)

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Email already exists", apiErr.Message)
		assert.Equal(t, "Submission Error", apiErr.Title())
		assert.False(t, apiErr.Temporary())
	})

	t.Run("ServerErrorIsTemporary", func(t *testing.T) {
		_, err := c.CreateCandidate(ctx, candidate.Input{FirstName: "Bo", LastName: "Om", Email: "boom@example.com"}, nil)

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Server Error", apiErr.Title())
		assert.True(t, apiErr.Temporary())
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := c.CreateCandidate(ctx, candidate.Input{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
			client.FileAttachment(filepath.Join(t.TempDir(), "missing.pdf")))
		assert.Error(t, err)
	})
}

func TestClient_Read(t *testing.T) {
	list := []candidate.Candidate{
		{ID: 2, FirstName: "Alan", LastName: "Turing", Email: "alan@example.com"},
		{ID: 1, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
	}

	router := chi.NewRouter()
	router.Get("/api/candidates", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondWithJSON(w, http.StatusOK, list)
	})
	router.Get("/api/candidates/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "1" {
			httputil.RespondWithError(w, http.StatusNotFound, candidate.MsgNotFound)
			return
		}
		httputil.RespondWithJSON(w, http.StatusOK, list[1])
	})
	router.Get("/broken/api/candidates", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	ctx := context.Background()
	c := client.New(server.URL, server.Client())

	t.Run("List", func(t *testing.T) {
		got, err := c.ListCandidates(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[0].ID)
	})

	t.Run("Get", func(t *testing.T) {
		got, err := c.GetCandidate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", got.Email)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := c.GetCandidate(ctx, 99)
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "Candidate not found", apiErr.Message)
		assert.Equal(t, "Not Found", apiErr.Title())
	})

	t.Run("NonJSONErrorBody", func(t *testing.T) {
		_, err := client.New(server.URL+"/broken", nil).ListCandidates(ctx)
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "502 Bad Gateway", apiErr.Message)
	})
}
