package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeper/internal/expense"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	r, err := NewReceipts(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	ref, err := r.Put(ctx, []byte("%PDF-1.4"), "Hotel bill.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, "_Hotel_bill.pdf"), ref)

	got, err := r.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Ref)
	assert.Equal(t, "Hotel_bill.pdf", got.Filename)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), got.Data)

	require.NoError(t, r.Delete(ctx, ref))
	_, err = r.Get(ctx, ref)
	assert.ErrorIs(t, err, expense.ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, ref), expense.ErrNotFound)
}

func TestPutNonASCIINameKeepsContentType(t *testing.T) {
	ctx := context.Background()
	r, err := NewReceipts(t.TempDir())
	require.NoError(t, err)

	ref, err := r.Put(ctx, []byte("%PDF-1.4"), "квитанция.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, "_receipt.pdf"), ref)

	got, err := r.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, "receipt.pdf", got.Filename)
}

func TestPutSameNameTwice(t *testing.T) {
	ctx := context.Background()
	r, err := NewReceipts(t.TempDir())
	require.NoError(t, err)

	a, err := r.Put(ctx, []byte("a"), "scan.png", "")
	require.NoError(t, err)
	b, err := r.Put(ctx, []byte("b"), "scan.png", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRefusesEscapingReferences(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r, err := NewReceipts(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o644))

	for _, ref := range []string{"../secret.txt", "..", "", "a/b", `..\secret.txt`} {
		_, err := r.Get(ctx, ref)
		assert.ErrorIs(t, err, expense.ErrNotFound, ref)
		assert.ErrorIs(t, r.Delete(ctx, ref), expense.ErrNotFound, ref)
	}
	_, err = os.Stat(filepath.Join(dir, "secret.txt"))
	assert.NoError(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"receipt.pdf", "receipt.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\scan 1.jpg`, "scan_1.jpg"},
		{"résumé.png", "rsum.png"},
		{"...", "receipt"},
		{"квитанция.pdf", "receipt.pdf"},
		{".pdf", "receipt.pdf"},
		{"scan.p df", "scan.p_df"},
		{"archive.tar.gz", "archive.tar.gz"},
		{"", "receipt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
