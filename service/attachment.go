package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"
	"unicode"

	"github.com/AnTengye/contractledger/model"
)

const (
	pdfContentType         = "application/pdf"
	octetStreamContentType = "application/octet-stream"
)

var pdfMagic = []byte("%PDF-")

// AttachmentService stores contract documents. Writes that fail with the
// primary credentials are retried once with the elevated store when one is set.
type AttachmentService struct {
	primary  ObjectStore
	elevated ObjectStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewAttachmentService(primary, elevated ObjectStore, logger *slog.Logger) *AttachmentService {
	return &AttachmentService{
		primary:  primary,
		elevated: elevated,
		logger:   logger,
		now:      time.Now,
	}
}

// IsPDF reports whether the upload may be stored as a PDF. A declared
// content type must be application/pdf. Uploads without a specific type
// (empty or application/octet-stream) must start with the PDF magic bytes.
// The file extension is never trusted.
func IsPDF(u model.Upload) bool {
	if strings.TrimSpace(u.ContentType) == "" {
		return bytes.HasPrefix(u.Data, pdfMagic)
	}
	ct, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil {
		return false
	}
	switch ct {
	case pdfContentType:
		return true
	case octetStreamContentType:
		return bytes.HasPrefix(u.Data, pdfMagic)
	default:
		return false
	}
}

// SanitizeFilename lower-cases name, replaces whitespace runs with "_" and
// drops path separators and any other character unsafe in an object key.
func SanitizeFilename(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			continue
		}
		lastUnderscore = r == '_'
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "document.pdf"
	}
	return out
}

// ObjectPath builds {company}/{contract}/{unix}_{sanitized}.
func ObjectPath(companyID, contractID string, at time.Time, filename string) string {
	return fmt.Sprintf("%s/%s/%d_%s", companyID, contractID, at.Unix(), SanitizeFilename(filename))
}

// Store writes the document and returns its path and public URL.
func (a *AttachmentService) Store(ctx context.Context, companyID, contractID string, u model.Upload) (objectPath, url string, err error) {
	ctx, span := tracer.Start(ctx, "attachment.store")
	defer func() { endSpan(span, err) }()

	if !IsPDF(u) {
		return "", "", &model.ValidationError{Field: "file", Reason: "only PDF files are allowed"}
	}
	if len(u.Data) == 0 {
		return "", "", &model.ValidationError{Field: "file", Reason: "file is empty"}
	}

	objectPath = ObjectPath(companyID, contractID, a.now(), u.Filename)
	store := a.primary
	err = store.Put(ctx, objectPath, u.Data, pdfContentType)
	if err != nil && a.elevated != nil {
		a.logger.Warn("primary storage write failed, retrying with elevated credentials", "path", objectPath, "error", err)
		store = a.elevated
		err = store.Put(ctx, objectPath, u.Data, pdfContentType)
	}
	if err != nil {
		a.logger.Error("failed to store document", "path", objectPath, "error", err)
		return "", "", &model.StorageError{Op: "put", Path: objectPath, Err: err}
	}

	a.logger.Info("document stored", "path", objectPath, "size", len(u.Data))
	return objectPath, store.PublicURL(objectPath), nil
}

// Retrieve reads a stored document.
func (a *AttachmentService) Retrieve(ctx context.Context, objectPath string) ([]byte, error) {
	data, err := a.primary.Get(ctx, objectPath)
	if err != nil && !errors.Is(err, ErrObjectNotFound) && a.elevated != nil {
		data, err = a.elevated.Get(ctx, objectPath)
	}
	if errors.Is(err, ErrObjectNotFound) {
		return nil, &model.NotFoundError{Resource: "document", ID: objectPath}
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get", Path: objectPath, Err: err}
	}
	return data, nil
}

// Delete removes a stored document. It reports false when nothing was stored at the path.
func (a *AttachmentService) Delete(ctx context.Context, objectPath string) (bool, error) {
	if objectPath == "" {
		return false, nil
	}
	if exists, err := a.primary.Exists(ctx, objectPath); err == nil && !exists {
		return false, nil
	}

	err := a.primary.Delete(ctx, objectPath)
	if err != nil && a.elevated != nil {
		err = a.elevated.Delete(ctx, objectPath)
	}
	if err != nil {
		return false, &model.StorageError{Op: "delete", Path: objectPath, Err: err}
	}
	return true, nil
}
