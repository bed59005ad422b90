package content

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStore struct{}

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket unavailable")
}

func TestLocalStore_Put(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "documents/abc", strings.NewReader("hello"), 5, "text/plain"))
	data, err := os.ReadFile(filepath.Join(root, "documents", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Put(context.Background(), "documents/abc", strings.NewReader("again"), 5, "text/plain"))
	data, err = os.ReadFile(filepath.Join(root, "documents", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "again", string(data))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "/etc/passwd", "documents/../../x"} {
		err := store.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestService_Upload(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	svc := NewService(store, zap.NewNop())

	up, err := svc.Upload(context.Background(), "diploma.pdf", strings.NewReader("hello"))
	require.NoError(t, err)

	const digest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	assert.Equal(t, "documents/"+digest, up.ContentID)
	assert.Equal(t, "0x"+digest, up.ContentHash)
	assert.Equal(t, int64(5), up.Size)
	assert.Equal(t, "diploma.pdf", up.Filename)

	stored, err := os.ReadFile(filepath.Join(root, "documents", digest))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(stored))

	again, err := svc.Upload(context.Background(), "copy.pdf", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, up.ContentID, again.ContentID)
}

func TestService_UploadRejects(t *testing.T) {
	svc := NewService(failingStore{}, zap.NewNop())

	_, err := svc.Upload(context.Background(), "empty", bytes.NewReader(nil))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Upload(context.Background(), "big", bytes.NewReader(make([]byte, MaxUploadSize+1)))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Upload(context.Background(), "ok", strings.NewReader("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInvalidInput)
}
