package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attachkit/internal/config"
)

func newTestLocal(t *testing.T, baseURL string) Storage {
	t.Helper()
	s, err := NewLocal(config.LocalDiskConfig{Root: t.TempDir(), BaseURL: baseURL})
	require.NoError(t, err)
	return s
}

func TestLocal_PutGetRoundTrip(t *testing.T) {
	s := newTestLocal(t, "")
	ctx := context.Background()

	content := []byte("hello attachments")
	info, err := s.Put(ctx, "docs/2026/hello.txt", bytes.NewReader(content), PutObjectOptions{
		Size:        int64(len(content)),
		ContentType: "text/plain",
		Metadata:    map[string]string{"original_name": "hello.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "docs/2026/hello.txt", info.Key)
	assert.Equal(t, int64(len(content)), info.Size)

	rc, got, err := s.Get(ctx, "docs/2026/hello.txt")
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, b)
	assert.Equal(t, "text/plain", got.ContentType)
	assert.Equal(t, "hello.txt", got.Metadata["original_name"])
}

func TestLocal_GetMissingReturnsErrNotFound(t *testing.T) {
	s := newTestLocal(t, "")

	_, _, err := s.Get(context.Background(), "nope/missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_ExistsAndDelete(t *testing.T) {
	s := newTestLocal(t, "")
	ctx := context.Background()

	_, err := s.Put(ctx, "a.txt", bytes.NewReader([]byte("x")), PutObjectOptions{})
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "a.txt"))

	ok, err = s.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing object is not an error.
	assert.NoError(t, s.Delete(ctx, "a.txt"))
}

func TestLocal_RejectsTraversal(t *testing.T) {
	s := newTestLocal(t, "")
	ctx := context.Background()

	_, err := s.Put(ctx, "../outside.txt", bytes.NewReader([]byte("x")), PutObjectOptions{})
	assert.Error(t, err)

	_, _, err = s.Get(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLocal_URL(t *testing.T) {
	withBase := newTestLocal(t, "http://localhost:8080/files/")
	u, err := withBase.URL("docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/docs/a.pdf", u)

	presigned, err := withBase.PresignGet(context.Background(), "docs/a.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, u, presigned, "local presign falls back to the public url")

	noBase := newTestLocal(t, "")
	_, err = noBase.URL("docs/a.pdf")
	assert.Error(t, err)
}
