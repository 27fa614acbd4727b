package resource_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildweaver/internal/resource"
)

func TestLocalAdapter_MtimeAndDigest(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0644))

	a := resource.NewLocalAdapter()
	ctx := context.Background()

	mt, err := a.Mtime(ctx, "file://localhost"+p, "", false)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Unix()), mt, 5)

	d1, err := a.Digest(ctx, "file://localhost"+p, "")
	require.NoError(t, err)
	assert.NotEmpty(t, d1)

	require.NoError(t, os.WriteFile(p, []byte("hello"), 0644))
	d2, err := a.Digest(ctx, "file://localhost"+p, "")
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "identical content must hash identically")

	require.NoError(t, os.WriteFile(p, []byte("world"), 0644))
	d3, err := a.Digest(ctx, "file://localhost"+p, "")
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestLocalAdapter_MissingFileIsNotFound(t *testing.T) {
	a := resource.NewLocalAdapter()
	_, err := a.Mtime(context.Background(), "file://localhost/no/such/file", "", false)
	var nf *resource.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestLocalAdapter_Remove(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))

	a := resource.NewLocalAdapter()
	require.NoError(t, a.Remove(context.Background(), "file://localhost"+p, ""))

	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	err = a.Remove(context.Background(), "file://localhost"+p, "")
	var nf *resource.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestRegistry_UnsupportedScheme(t *testing.T) {
	r := resource.NewRegistry()
	_, err := r.Lookup("s3")
	var unsupported *resource.UnsupportedSchemeError
	require.True(t, errors.As(err, &unsupported))
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := resource.NewRegistry()
	a := resource.NewLocalAdapter()
	r.Register("file", a)
	got, err := r.Lookup("file")
	require.NoError(t, err)
	assert.Same(t, a, got)
}
