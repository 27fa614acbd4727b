// Package watch implements --watch: rebuilding the requested targets
// whenever a local-filesystem dependency changes. Supplements the
// single-shot invocation in spec.md §4.6 without altering it — each
// triggered rebuild is a complete, independent run of the same
// graph-build-and-execute pipeline.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"buildweaver/internal/graphbuild"
	"buildweaver/internal/uri"
)

// debounce coalesces bursts of filesystem events (e.g. an editor's
// write-then-rename save sequence) into a single rebuild.
const debounce = 250 * time.Millisecond

// Watcher subscribes to the directories containing every file-scheme
// dependency in a graph and triggers a rebuild when one of the tracked
// files changes.
type Watcher struct {
	fsw    *fsnotify.Watcher
	files  map[string]bool // absolute file paths worth reacting to
	logger *slog.Logger
}

// New creates a Watcher. Call Watch to populate it from a graph, then Run.
func New(logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{fsw: fsw, files: make(map[string]bool), logger: logger}, nil
}

// Close releases the underlying OS watch handles.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watch subscribes to every file-scheme dependency and target in g, via its
// containing directory (fsnotify watches directories, not individual
// inodes, so renames and recreations are still observed). Non-file schemes
// are not watchable and are skipped, logged once at info.
func (w *Watcher) Watch(g *graphbuild.Graph) error {
	dirs := make(map[string]bool)
	skippedSchemes := make(map[string]bool)

	record := func(raw string) {
		u, err := uri.Parse(raw)
		if err != nil {
			return
		}
		if u.Scheme != "file" {
			skippedSchemes[u.Scheme] = true
			return
		}
		abs := filepath.Clean(u.Path)
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	for _, j := range g.All {
		for _, t := range j.Targets {
			record(t)
		}
		for _, d := range j.DepsUnique {
			record(d)
		}
	}

	for scheme := range skippedSchemes {
		w.logger.Info("watch: scheme is not watchable, excluded from watch set", "scheme", scheme)
	}

	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Info("watch: failed to subscribe to directory", "dir", dir, "error", err)
		}
	}
	return nil
}

// Run blocks, invoking rebuild every time a tracked file changes, debounced
// so a burst of events triggers one rebuild. Returns when ctx is done or
// the underlying watcher's channels are closed; watch errors are logged at
// warn and do not end the loop.
func (w *Watcher) Run(ctx context.Context, rebuild func(context.Context)) error {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			timerC = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch: filesystem watch error", "error", err)

		case <-timerC:
			timerC = nil
			w.logger.Info("watch: change detected, rebuilding")
			rebuild(ctx)
		}
	}
}
