package upload

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOC  = "application/msword"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	DefaultMaxBytes int64 = 5 * 1024 * 1024

	// sniffLen matches the read limit mimetype uses for detection.
	sniffLen = 3072
)

const MsgInvalidType = "Only PDF and DOCX files are allowed"

var (
	ErrFileRejected       = errors.New("file rejected")
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedBody means the client's file stream broke off or was badly framed.
	ErrMalformedBody = errors.New("malformed upload body")
)

var allowedTypes = []string{MIMEPDF, MIMEDOC, MIMEDOCX}

var allowedExtensions = map[string]string{
	".pdf":  MIMEPDF,
	".doc":  MIMEDOC,
	".docx": MIMEDOCX,
}

// RejectedError is a client-correctable refusal of an uploaded file.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrFileRejected
}

func Reject(format string, args ...interface{}) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

type Policy struct {
	MaxBytes int64
}

func (p Policy) maxBytes() int64 {
	if p.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return p.MaxBytes
}

// CheckSize rejects anything strictly larger than the ceiling.
func (p Policy) CheckSize(size int64) error {
	if size > p.maxBytes() {
		return Reject("File size must not exceed %s", formatSize(p.maxBytes()))
	}
	return nil
}

// CheckType accepts a file when its declared type or its extension is allowed.
// A generic declared type (empty or application/octet-stream) falls back to
// sniffing head, the first bytes of the content.
// It returns the content type to record for the stored file.
func (p Policy) CheckType(declared, filename string, head []byte) (string, error) {
	mediaType := normalizeMediaType(declared)
	if isAllowedType(mediaType) {
		return mediaType, nil
	}

	if t := TypeByExtension(filename); t != "" {
		return t, nil
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		detected := mimetype.Detect(head)
		for _, t := range allowedTypes {
			if detected.Is(t) {
				return t, nil
			}
		}
	}

	return "", Reject(MsgInvalidType)
}

// TypeByExtension returns the accepted content type for name's extension, or "" if not accepted.
func TypeByExtension(name string) string {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

func isAllowedType(mediaType string) bool {
	for _, t := range allowedTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func normalizeMediaType(declared string) string {
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mediaType
}

func formatSize(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
