package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/relloyd/sunglass-etl/aws/s3"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBucket(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "users", "2024", "01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users", "2024", "01", "part-1.parquet"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users", "part-0.parquet"), []byte("a"), 0o644))

	for _, loc := range []string{filepath.Join(dir, "users"), "file://" + filepath.ToSlash(filepath.Join(dir, "users"))} {
		b, err := Open(loc, Options{})
		require.NoError(t, err)
		keys, err := b.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"2024/01/part-1.parquet", "part-0.parquet"}, keys)
		data, err := b.Get(context.Background(), "part-0.parquet")
		require.NoError(t, err)
		assert.Equal(t, "a", string(data))
		_, err = b.Get(context.Background(), "nope.parquet")
		assert.True(t, errors.Is(err, s3.ErrKeyNotFound))
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open("gs://bucket/users", Options{})
	assert.Error(t, err)
}

func TestOpenS3DefaultsRegion(t *testing.T) {
	b, err := Open("s3://bucket/users", Options{})
	require.NoError(t, err)
	require.IsType(t, &s3Bucket{}, b)
	assert.Equal(t, "s3://bucket/users", b.(*s3Bucket).location)
	l, err := s3.ParseLocation("s3://bucket/users", "")
	require.NoError(t, err)
	assert.Equal(t, c.DefaultS3Region, l.Region)
}
