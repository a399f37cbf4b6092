// internal/storage/storage_test.go
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfp-pipeline/internal/common/logger"
)

type fakeObjectClient struct {
	bucket  string
	objects map[string][]byte
	putErr  error
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{bucket: "proposals-bucket", objects: make(map[string][]byte)}
}

func (f *fakeObjectClient) Bucket() string { return f.bucket }

func (f *fakeObjectClient) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = body
	return nil
}

func (f *fakeObjectClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found", key)
	}
	return body, nil
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "clean name untouched",
			input:    "proposal-v2.pdf",
			expected: "proposal-v2.pdf",
		},
		{
			name:     "spaces and slashes replaced",
			input:    "our proposal/final version.pdf",
			expected: "our-proposal-final-version.pdf",
		},
		{
			name:     "unicode replaced",
			input:    "предложение.pdf",
			expected: strings.Repeat("-", 11) + ".pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 500) + ".pdf"
	assert.Len(t, SanitizeFilename(long), 240)
}

func TestSanitizeFilenameEmptyFallback(t *testing.T) {
	name := SanitizeFilename("")
	assert.True(t, strings.HasPrefix(name, "file-"), "got %q", name)
}

func TestSaveToS3(t *testing.T) {
	s3 := newFakeObjectClient()
	store := NewStore(s3, "us-east-1", t.TempDir(), logger.NewNoOpLogger())

	meta := store.Save(context.Background(), []byte("pdf bytes"), "proposal.pdf", "application/pdf")

	assert.Empty(t, meta.Error)
	assert.Equal(t, int64(9), meta.Size)
	require.NotNil(t, meta.StorageURL)
	assert.True(t, strings.HasPrefix(*meta.StorageURL, "https://proposals-bucket.s3.us-east-1.amazonaws.com/"))
	assert.Len(t, s3.objects, 1)

	// Round trip through the locator.
	content, err := store.Retrieve(context.Background(), *meta.StorageURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), content)
}

func TestSaveFallsBackToLocalWhenS3Fails(t *testing.T) {
	s3 := newFakeObjectClient()
	s3.putErr = fmt.Errorf("access denied")
	dir := t.TempDir()
	store := NewStore(s3, "us-east-1", dir, logger.NewNoOpLogger())

	meta := store.Save(context.Background(), []byte("pdf bytes"), "proposal.pdf", "application/pdf")

	assert.Empty(t, meta.Error)
	require.NotNil(t, meta.StorageURL)
	assert.True(t, strings.HasPrefix(*meta.StorageURL, dir))

	content, err := store.Retrieve(context.Background(), *meta.StorageURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), content)
}

func TestSaveLocalOnly(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil, "", dir, logger.NewNoOpLogger())

	meta := store.Save(context.Background(), []byte("doc"), "terms & conditions.docx", "application/msword")

	assert.Empty(t, meta.Error)
	require.NotNil(t, meta.StorageURL)
	assert.Contains(t, filepath.Base(*meta.StorageURL), "terms---conditions.docx")
}

func TestSaveDegradesOnTotalFailure(t *testing.T) {
	// A file path where the upload directory should be makes MkdirAll fail.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, writeFile(blocker))

	store := NewStore(nil, "", blocker, logger.NewNoOpLogger())
	meta := store.Save(context.Background(), []byte("doc"), "proposal.pdf", "application/pdf")

	assert.Nil(t, meta.StorageURL)
	assert.NotEmpty(t, meta.Error)
	assert.Equal(t, "proposal.pdf", meta.Filename)
	assert.Equal(t, int64(3), meta.Size)
}

func TestSaveEmptyContent(t *testing.T) {
	store := NewStore(nil, "", t.TempDir(), logger.NewNoOpLogger())
	meta := store.Save(context.Background(), nil, "proposal.pdf", "application/pdf")

	assert.Nil(t, meta.StorageURL)
	assert.Equal(t, "attachment has no content", meta.Error)
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func TestRetrieveUnknownLocalPath(t *testing.T) {
	store := NewStore(nil, "", t.TempDir(), logger.NewNoOpLogger())
	_, err := store.Retrieve(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
