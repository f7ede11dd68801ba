package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxNameLen = 100

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Incoming is a single file part as received from a client.
type Incoming struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type StoredFile struct {
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	// URL is the public path, e.g. /uploads/<name>.
	URL string `json:"url"`
}

// Scanner inspects a stored file before it is referenced by a record.
// Returning an error wrapping ErrFileRejected refuses the upload.
type Scanner interface {
	Scan(ctx context.Context, path string) error
}

type ScannerFunc func(ctx context.Context, path string) error

func (f ScannerFunc) Scan(ctx context.Context, path string) error {
	return f(ctx, path)
}

type NopScanner struct{}

func (NopScanner) Scan(context.Context, string) error { return nil }

type Config struct {
	Dir          string
	PublicPrefix string
	MaxBytes     int64
	Scanner      Scanner
}

type Store struct {
	dir          string
	publicPrefix string
	policy       Policy
	scanner      Scanner
	logger       *slog.Logger
	now          func() time.Time
}

func NewStore(cfg Config, logger *slog.Logger) *Store {
	prefix := cfg.PublicPrefix
	if prefix == "" {
		prefix = "/uploads"
	}
	scanner := cfg.Scanner
	if scanner == nil {
		scanner = NopScanner{}
	}
	return &Store{
		dir:          cfg.Dir,
		publicPrefix: "/" + strings.Trim(prefix, "/"),
		policy:       Policy{MaxBytes: cfg.MaxBytes},
		scanner:      scanner,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) PublicPrefix() string {
	return s.publicPrefix
}

func (s *Store) MaxBytes() int64 {
	return s.policy.maxBytes()
}

// EnsureDir creates the uploads directory if needed and verifies it is writable.
// Concurrent callers are fine, MkdirAll tolerates an existing directory.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, s.dir, err)
	}
	probe, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrStorageUnavailable, s.dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// Save validates and writes f under a collision-resistant name.
// Nothing is left on disk when Save returns an error.
func (s *Store) Save(ctx context.Context, f Incoming) (*StoredFile, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, s.dir, err)
	}

	body := &bodyReader{r: f.Body}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && body.err != nil {
		return nil, s.readError(body.err)
	}
	head = head[:n]

	contentType, err := s.policy.CheckType(f.ContentType, f.Filename, head)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckSize(int64(n)); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	// One byte past the ceiling is enough to know the file is too large.
	limit := s.policy.maxBytes() + 1 - int64(n)
	written, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), io.LimitReader(body, limit)))
	closeErr := tmp.Close()
	if err != nil {
		if body.err != nil {
			return nil, s.readError(body.err)
		}
		return nil, fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, tmpName, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, closeErr)
	}
	if err := s.policy.CheckSize(written); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.scanner.Scan(ctx, tmpName); err != nil {
		return nil, err
	}

	name := s.generateName(f.Filename, contentType)
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	committed = true

	s.logger.DebugContext(ctx, "stored upload", "file", name, "size", written, "content_type", contentType)

	return &StoredFile{
		Name:         name,
		OriginalName: f.Filename,
		ContentType:  contentType,
		Size:         written,
		URL:          path.Join(s.publicPrefix, name),
	}, nil
}

// Remove deletes a stored file by name. Missing files are not an error.
func (s *Store) Remove(name string) error {
	if !isPlainName(name) {
		return fmt.Errorf("invalid stored file name %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// NameFromURL maps a public URL produced by Save back to the stored file name.
func (s *Store) NameFromURL(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, s.publicPrefix+"/")
	if !ok || !isPlainName(name) {
		return "", false
	}
	return name, true
}

// generateName builds <unix-millis>-<random>-<sanitized original name>.
func (s *Store) generateName(original, contentType string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), suffix, sanitizeName(original, contentType))
}

func sanitizeName(original, contentType string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if _, ok := allowedExtensions[ext]; !ok {
		ext = extensionFor(contentType)
	}

	stem = strings.Trim(unsafeNameChars.ReplaceAllString(stem, "_"), "._")
	if len(stem) > maxNameLen {
		stem = stem[:maxNameLen]
	}
	if stem == "" {
		stem = "cv"
	}
	return stem + ext
}

func extensionFor(contentType string) string {
	switch contentType {
	case MIMEPDF:
		return ".pdf"
	case MIMEDOC:
		return ".doc"
	case MIMEDOCX:
		return ".docx"
	}
	return ""
}

func (s *Store) tooLarge() error {
	return s.policy.CheckSize(s.policy.maxBytes() + 1)
}

// readError classifies a failure reading the client's file stream.
func (s *Store) readError(err error) error {
	if bodyTooLarge(err) {
		return s.tooLarge()
	}
	return fmt.Errorf("%w: %v", ErrMalformedBody, err)
}

// bodyReader remembers the first non-EOF read error, so copy failures can be
// told apart from disk failures.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

// bodyTooLarge reports whether the request body cap tripped before the file ended.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
