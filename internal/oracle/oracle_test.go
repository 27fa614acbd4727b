package oracle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildweaver/internal/oracle"
	"buildweaver/internal/resource"
)

func newOracle(cacheDir string) *oracle.Oracle {
	reg := resource.NewRegistry()
	reg.Register("file", resource.NewLocalAdapter())
	return oracle.New(reg, cacheDir)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func uriFor(path string) string {
	return "file://localhost" + path
}

func TestOracle_FreshBuildNeedsUpdate(t *testing.T) {
	work := t.TempDir()
	o := newOracle(t.TempDir())
	dep := filepath.Join(work, "dep.txt")
	out := filepath.Join(work, "out.txt")
	writeFile(t, dep, "v1")

	ctx := context.Background()
	cred := func(string) string { return "" }

	need, err := o.NeedsUpdate(ctx, []string{uriFor(out)}, cred, []string{uriFor(dep)}, cred, true)
	require.NoError(t, err)
	assert.True(t, need, "missing target always needs update")
}

func TestOracle_NoOpRebuildWhenTargetNewer(t *testing.T) {
	work := t.TempDir()
	o := newOracle(t.TempDir())
	dep := filepath.Join(work, "dep.txt")
	out := filepath.Join(work, "out.txt")
	writeFile(t, dep, "v1")
	time.Sleep(10 * time.Millisecond)
	writeFile(t, out, "built")

	ctx := context.Background()
	cred := func(string) string { return "" }

	need, err := o.NeedsUpdate(ctx, []string{uriFor(out)}, cred, []string{uriFor(dep)}, cred, false)
	require.NoError(t, err)
	assert.False(t, need, "target newer than dep must not need rebuild")
}

func TestOracle_HashGatedTouchDoesNotTriggerRebuild(t *testing.T) {
	work := t.TempDir()
	cacheDir := t.TempDir()
	dep := filepath.Join(work, "dep.txt")
	out := filepath.Join(work, "out.txt")
	writeFile(t, dep, "same content")
	time.Sleep(10 * time.Millisecond)
	writeFile(t, out, "built")

	ctx := context.Background()
	cred := func(string) string { return "" }

	// Prime the hash cache on a first "run".
	o1 := newOracle(cacheDir)
	_, err := o1.NeedsUpdate(ctx, []string{uriFor(out)}, cred, []string{uriFor(dep)}, cred, true)
	require.NoError(t, err)

	// Rewrite the dep with identical content but a newer mtime: the content
	// hash is unchanged, so a hash-aware job must not see this as stale, even
	// from a second run with a fresh in-memory memo cache.
	time.Sleep(10 * time.Millisecond)
	writeFile(t, dep, "same content")

	o2 := newOracle(cacheDir)
	need, err := o2.NeedsUpdate(ctx, []string{uriFor(out)}, cred, []string{uriFor(dep)}, cred, true)
	require.NoError(t, err)
	assert.False(t, need, "mtime-only touch of identical content must not trigger rebuild")
}

func TestOracle_ContentChangeTriggersRebuild(t *testing.T) {
	work := t.TempDir()
	cacheDir := t.TempDir()
	dep := filepath.Join(work, "dep.txt")
	out := filepath.Join(work, "out.txt")
	writeFile(t, dep, "v1")
	time.Sleep(10 * time.Millisecond)
	writeFile(t, out, "built")

	ctx := context.Background()
	cred := func(string) string { return "" }

	o1 := newOracle(cacheDir)
	_, err := o1.NeedsUpdate(ctx, []string{uriFor(out)}, cred, []string{uriFor(dep)}, cred, true)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	writeFile(t, dep, "v2 - actually different")

	o2 := newOracle(cacheDir)
	need, err := o2.NeedsUpdate(ctx, []string{uriFor(out)}, cred, []string{uriFor(dep)}, cred, true)
	require.NoError(t, err)
	assert.True(t, need, "content change must trigger rebuild even with a fresh memo cache")
}

func TestOracle_MemoCacheAnswersRepeatedlyWithinOneRun(t *testing.T) {
	work := t.TempDir()
	dep := filepath.Join(work, "dep.txt")
	writeFile(t, dep, "v1")

	o := newOracle(t.TempDir())
	ctx := context.Background()

	t1, err := o.TimeOfDep(ctx, uriFor(dep), "", false)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	writeFile(t, dep, "v1-changed-after-first-read")

	t2, err := o.TimeOfDep(ctx, uriFor(dep), "", false)
	require.NoError(t, err)
	assert.Equal(t, t1, t2, "a dep's time-of-dep is memoized for the life of one run")
}
