package oracle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"buildweaver/internal/resource"
	"buildweaver/internal/uri"
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Oracle answers "what is the effective modification time of this
// dependency, accounting for the hash cache" and memoizes the answer for the
// lifetime of one run.
//
// Grounded on spec.md §4.2's six-step algorithm and the "in-memory, per-run
// time-of-dep cache" requirement.
type Oracle struct {
	registry *resource.Registry
	cache    *hashCache

	// memo is the per-run time-of-dep cache, keyed by raw URI string.
	// Per-key locks keep hash computation off a single global critical
	// section, per spec.md §5's "per-key locks in the time cache."
	memoMu sync.Mutex
	memo   map[string]*memoEntry
}

type memoEntry struct {
	once sync.Once
	t    float64
	err  error
}

// New constructs an Oracle backed by registry for adapter lookups and
// cacheDir for the on-disk hash cache.
func New(registry *resource.Registry, cacheDir string) *Oracle {
	return &Oracle{
		registry: registry,
		cache:    newHashCache(cacheDir),
		memo:     make(map[string]*memoEntry),
	}
}

// MtimeOf returns the raw modification time of rawURI via its registered
// adapter, without hash augmentation. Used for target mtimes (use_hash is
// always false for targets per spec.md §4.2's need_update formula).
func (o *Oracle) MtimeOf(ctx context.Context, rawURI, credential string) (float64, error) {
	u, err := uri.Parse(rawURI)
	if err != nil {
		return 0, err
	}
	a, err := o.registry.Lookup(u.Scheme)
	if err != nil {
		return 0, err
	}
	return a.Mtime(ctx, rawURI, credential, false)
}

// TimeOfDep returns the effective, hash-augmented modification time of a
// dependency, consulting and updating the per-run memo cache.
func (o *Oracle) TimeOfDep(ctx context.Context, rawURI, credential string, useHash bool) (float64, error) {
	o.memoMu.Lock()
	me, ok := o.memo[rawURI]
	if !ok {
		me = &memoEntry{}
		o.memo[rawURI] = me
	}
	o.memoMu.Unlock()

	me.once.Do(func() {
		me.t, me.err = o.timeOfDepUncached(ctx, rawURI, credential, useHash)
	})
	return me.t, me.err
}

func (o *Oracle) timeOfDepUncached(ctx context.Context, rawURI, credential string, useHash bool) (float64, error) {
	u, err := uri.Parse(rawURI)
	if err != nil {
		return 0, err
	}
	a, err := o.registry.Lookup(u.Scheme)
	if err != nil {
		return 0, err
	}

	tURI, err := a.Mtime(ctx, rawURI, credential, useHash)
	if err != nil {
		return 0, err
	}
	if !useHash {
		return tURI, nil
	}
	return o.hashAugmented(ctx, a, u, rawURI, credential, tURI)
}

// hashAugmented implements spec.md §4.2 steps 2-6.
func (o *Oracle) hashAugmented(ctx context.Context, a resource.Adapter, u uri.URI, rawURI, credential string, tURI float64) (float64, error) {
	path := o.cache.pathFor(u)

	cached, cacheMtime, lock, err := o.cache.readWithLock(path)
	if err != nil {
		return 0, err
	}
	defer lock.Unlock()

	hNow, err := a.Digest(ctx, rawURI, credential)
	if err != nil {
		if err == resource.ErrNoDigest {
			// No native digest: behave as if use_hash were false.
			return tURI, nil
		}
		return 0, err
	}

	if cached == nil {
		if err := o.cache.write(path, entry{T: tURI, H: hNow}); err != nil {
			return 0, err
		}
		return tURI, nil
	}

	// Step 5: if the cache file's own mtime is newer than the URI's raw
	// mtime, the cache is authoritative.
	if cacheMtime > tURI {
		return cached.T, nil
	}

	// Step 6: compare content digests.
	if hNow == cached.H {
		if err := o.cache.touch(path); err != nil {
			return 0, err
		}
		return cached.T, nil
	}

	if err := o.cache.write(path, entry{T: tURI, H: hNow}); err != nil {
		return 0, err
	}
	return tURI, nil
}

// NeedsUpdate implements spec.md §4.2's "a job needs update" predicate for a
// file job: any target missing/unreachable, or the maximum effective dep
// time exceeds the minimum raw target time.
//
// deps and their (credential, useHash) pairs are supplied by the caller (the
// job/graphbuild layer), since the oracle itself has no notion of a job.
func (o *Oracle) NeedsUpdate(ctx context.Context, targets []string, targetCredential func(string) string, deps []string, depCredential func(string) string, useHash bool) (bool, error) {
	minTargetTime, err := o.minTargetTime(ctx, targets, targetCredential)
	if err != nil {
		// Missing/unreachable target: still populate the hash cache for each
		// dep (so a subsequent, successful build starts from a fresh
		// baseline), matching "Intentionally create hash caches" in the
		// original.
		for _, d := range deps {
			_, _ = o.TimeOfDep(ctx, d, depCredential(d), useHash)
		}
		return true, nil
	}

	maxDepTime := math.Inf(-1)
	for _, d := range deps {
		t, err := o.TimeOfDep(ctx, d, depCredential(d), useHash)
		if err != nil {
			return true, nil //nolint:nilerr // staleness-probe failure means "rebuild"
		}
		if t > maxDepTime {
			maxDepTime = t
		}
	}

	// Strict '>' is intentional: see spec.md §4.2.
	return maxDepTime > minTargetTime, nil
}

func (o *Oracle) minTargetTime(ctx context.Context, targets []string, credential func(string) string) (float64, error) {
	if len(targets) == 0 {
		return 0, fmt.Errorf("oracle: no targets")
	}
	min := 0.0
	for i, t := range targets {
		mt, err := o.MtimeOf(ctx, t, credential(t))
		if err != nil {
			return 0, err
		}
		if i == 0 || mt < min {
			min = mt
		}
	}
	return min, nil
}
