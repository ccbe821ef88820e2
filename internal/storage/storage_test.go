package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the shared contract against any Storage implementation.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "athena_missing")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, s.Set(ctx, KeyDonations, []byte(`[{"id":"d1"}]`)))
	got, err := s.Get(ctx, KeyDonations)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"d1"}]`, string(got))

	require.NoError(t, s.Set(ctx, KeyDonations, []byte(`[]`)))
	got, err = s.Get(ctx, KeyDonations)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	require.NoError(t, s.Delete(ctx, KeyDonations))
	_, err = s.Get(ctx, KeyDonations)
	assert.ErrorIs(t, err, ErrNotExist)

	// deleting twice is not an error
	assert.NoError(t, s.Delete(ctx, KeyDonations))
	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLocalStorage(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestLocalStorage_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, KeyBlogPosts, []byte(`[{"id":"p1"}]`)))

	s2, err := NewLocalStorage(dir)
	require.NoError(t, err)
	got, err := s2.Get(ctx, KeyBlogPosts)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(got))

	// no temp files left behind
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	assert.Empty(t, matches)
	_, err = os.Stat(filepath.Join(dir, KeyBlogPosts+".json"))
	assert.NoError(t, err)
}

func TestLocalStorage_RejectsPathTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	err = s.Set(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestRedisStorage(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" || testing.Short() {
		t.Skip("REDIS_URL not set; skipping redis integration test")
	}
	s, err := NewRedisStorage(context.Background(), url, "athena_test:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStorage(t, s)
}
