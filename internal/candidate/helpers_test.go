package candidate_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"sync"
	"testing"

	"candidate-service/internal/candidate"

	"github.com/stretchr/testify/require"
)

type filePart struct {
	field       string
	name        string
	contentType string
	data        []byte
}

func pdfFile(name string, size int) filePart {
	data := bytes.Repeat([]byte("0"), size)
	copy(data, "%PDF-1.4\n")
	return filePart{field: "cv", name: name, contentType: "application/pdf", data: data}
}

// newMultipartRequest builds a create request; text fields are written before files.
func newMultipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.name))
		if f.contentType != "" {
			header.Set("Content-Type", f.contentType)
		}
		pw, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = pw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// newFileFirstRequest puts the CV part ahead of the text fields.
func newFileFirstRequest(t *testing.T, fields map[string]string, file filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(file.field, file.name)
	require.NoError(t, err)
	_, err = fw.Write(file.data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func filesIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []candidate.CreatedEvent
	keys   []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, value.(candidate.CreatedEvent))
	return nil
}

func (p *recordingPublisher) Events() []candidate.CreatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]candidate.CreatedEvent(nil), p.events...)
}

func (p *recordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.keys = nil
}
