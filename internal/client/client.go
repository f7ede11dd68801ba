// Package client is a typed HTTP client for the candidate API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"candidate-service/common/httputil"
	"candidate-service/internal/candidate"
	"candidate-service/internal/upload"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title(), e.Message)
}

// Title is a short heading for the error, suitable for a dialog.
func (e *APIError) Title() string {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return "Not Found"
	case e.StatusCode >= 500:
		return "Server Error"
	case e.StatusCode >= 400:
		return "Submission Error"
	default:
		return "Unexpected Response"
	}
}

// Temporary reports whether resubmitting the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

// Attachment is a CV to send along with a candidate. Open is called once per
// attempt so a retried submission re-reads the file.
type Attachment struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

func FileAttachment(path string) *Attachment {
	return &Attachment{
		Filename:    filepath.Base(path),
		ContentType: upload.TypeByExtension(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for baseURL. A nil httpClient gets a client with a 60s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateCandidate submits the form fields and optional CV as multipart/form-data.
// The body is streamed, the CV is never held in memory.
func (c *Client) CreateCandidate(ctx context.Context, in candidate.Input, cv *Attachment) (*candidate.Candidate, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, in, cv))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/candidates", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var created candidate.Candidate
	if err := c.do(req, http.StatusCreated, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) ListCandidates(ctx context.Context) ([]candidate.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/candidates", nil)
	if err != nil {
		return nil, err
	}

	var candidates []candidate.Candidate
	if err := c.do(req, http.StatusOK, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (c *Client) GetCandidate(ctx context.Context, id int) (*candidate.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/candidates/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}

	var found candidate.Candidate
	if err := c.do(req, http.StatusOK, &found); err != nil {
		return nil, err
	}
	return &found, nil
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: httputil.DecodeError(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func writeForm(mw *multipart.Writer, in candidate.Input, cv *Attachment) error {
	fields := []struct{ name, value string }{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"email", in.Email},
		{"phoneNumber", in.PhoneNumber},
		{"address", in.Address},
		{"education", in.Education},
		{"workExperience", in.WorkExperience},
	}
	if in.ExperienceYears != nil {
		fields = append(fields, struct{ name, value string }{"experienceYears", strconv.Itoa(*in.ExperienceYears)})
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}

	if cv != nil {
		if err := writeFile(mw, cv); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, cv *Attachment) error {
	src, err := cv.Open()
	if err != nil {
		return fmt.Errorf("failed to open cv: %w", err)
	}
	defer src.Close()

	contentType := cv.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		candidate.CVField, escapeQuotes(cv.Filename)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
