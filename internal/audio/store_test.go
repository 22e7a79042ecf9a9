package audio

import (
	"context"
	stderrs "errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"XianwaiTTS/pkg/errors"
	stores "XianwaiTTS/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *stores.LocalStore) {
	t.Helper()
	backend, err := stores.NewLocalStore(filepath.Join(t.TempDir(), "audio_files"))
	require.NoError(t, err)
	return NewStore(backend), backend
}

func TestFilenameFormat(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{32}\.mp3$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := NewFilename()
		assert.Regexp(t, re, n)
		assert.False(t, seen[n])
		seen[n] = true
	}
}

func TestWriteReadDelete(t *testing.T) {
	s, backend := newStore(t)
	ctx := context.Background()

	name, err := s.Write(ctx, []byte("mp3-data"))
	require.NoError(t, err)

	data, err := s.Read(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-data"), data)

	rc, size, err := s.Open(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(len("mp3-data")), size)
	require.NoError(t, rc.Close())
	_, err = os.Stat(filepath.Join(backend.Dir, name))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, name))
	require.NoError(t, s.Delete(ctx, name), "second delete is a no-op")

	_, err = s.Read(ctx, name)
	assert.True(t, stderrs.Is(err, errors.ErrNotFound))
}

func TestDeleteMissingIsNoError(t *testing.T) {
	s, _ := newStore(t)
	assert.NoError(t, s.Delete(context.Background(), "0123456789abcdef0123456789abcdef.mp3"))
}

func TestReadRejectsTraversal(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Read(context.Background(), "../../etc/passwd")
	assert.True(t, stderrs.Is(err, errors.ErrNotFound))

	_, _, err = s.Open(context.Background(), "../x.mp3")
	assert.True(t, stderrs.Is(err, errors.ErrNotFound))
	_, _, err = s.Open(context.Background(), "notes.txt")
	assert.True(t, stderrs.Is(err, errors.ErrNotFound))
}

func TestListOnlyAudio(t *testing.T) {
	s, backend := newStore(t)
	ctx := context.Background()
	name, err := s.Write(ctx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(backend.Dir, "readme.txt"), []byte("x"), 0o600))

	objs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, name, objs[0].Key)
}
