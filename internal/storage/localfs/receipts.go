// Package localfs stores receipt files in a local directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bookkeeper/internal/expense"
	"bookkeeper/internal/models"
)

// Receipts is the filesystem expense.ReceiptStore.
// A reference is the file name inside the upload directory.
type Receipts struct {
	dir string
}

var _ expense.ReceiptStore = (*Receipts)(nil)

// NewReceipts creates the upload directory if needed.
func NewReceipts(dir string) (*Receipts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Receipts{dir: dir}, nil
}

// Put writes data under a fresh reference derived from filename.
func (r *Receipts) Put(_ context.Context, data []byte, filename, _ string) (string, error) {
	ref := uuid.NewString() + "_" + SanitizeFilename(filename)
	if err := os.WriteFile(filepath.Join(r.dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write receipt: %w", expense.ErrStorageUnavailable, err)
	}
	return ref, nil
}

// Get reads the receipt behind ref.
func (r *Receipts) Get(_ context.Context, ref string) (models.Receipt, error) {
	path, ok := r.path(ref)
	if !ok {
		return models.Receipt{}, expense.ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Receipt{}, mapError(err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return models.Receipt{
		Ref:         ref,
		Filename:    originalName(ref),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// Delete removes the receipt behind ref.
func (r *Receipts) Delete(_ context.Context, ref string) error {
	path, ok := r.path(ref)
	if !ok {
		return expense.ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		return mapError(err)
	}
	return nil
}

// path resolves ref inside the upload directory.
// References that are not plain file names are refused.
func (r *Receipts) path(ref string) (string, bool) {
	if ref == "" || ref == "." || ref == ".." || filepath.Base(ref) != ref || strings.ContainsAny(ref, `/\`) {
		return "", false
	}
	return filepath.Join(r.dir, ref), true
}

// SanitizeFilename reduces name to a safe base name made of letters,
// digits, dots, dashes and underscores. The extension survives even when
// nothing of the stem does, so the content type can still be derived.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := filepath.Ext(name)
	stem := strings.Trim(keepSafe(strings.TrimSuffix(name, ext)), "._")
	if stem == "" {
		stem = "receipt"
	}
	if ext = keepSafe(strings.TrimPrefix(ext, ".")); ext != "" {
		return stem + "." + ext
	}
	return stem
}

func keepSafe(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteRune(c)
		case c == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}

func originalName(ref string) string {
	if _, rest, ok := strings.Cut(ref, "_"); ok && rest != "" {
		return rest
	}
	return ref
}

func mapError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return expense.ErrNotFound
	}
	return fmt.Errorf("%w: %w", expense.ErrStorageUnavailable, err)
}
