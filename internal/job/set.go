package job

import (
	"fmt"
	"sync"
)

// Set is the job table: a registry mapping target name to the Job that
// produces it, plus the declaration-order sequence counter used for
// priority-tie breaking.
//
// Grounded on original_source/buildpy/vx/__init__.py's job_of_target
// (_tval.NonOverwritableDict) and the spec's "every target appears in
// job_of_target at most once" invariant.
type Set struct {
	mu       sync.RWMutex
	byTarget map[string]*Job
	all      []*Job
	seq      int
}

// NewSet constructs an empty job table.
func NewSet() *Set {
	return &Set{byTarget: make(map[string]*Job)}
}

// DuplicateTargetError is returned when a target is declared by two jobs
// bound to different actions.
type DuplicateTargetError struct {
	Target string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("job: target %q already registered with a different action", e.Target)
}

// PhonyMultiTargetError is returned when a phony job declares more than one
// target.
type PhonyMultiTargetError struct {
	Targets []string
}

func (e *PhonyMultiTargetError) Error() string {
	return fmt.Sprintf("job: phony job with multiple targets is not supported: %v", e.Targets)
}

// Add registers j under every target it declares.
//
// If a target is already bound to an existing job and j's action is the same
// function value, this is a no-op (the existing job is kept and j is
// discarded). If the action differs, it is a fatal DuplicateTargetError.
func (s *Set) Add(j *Job) (*Job, error) {
	if j.Kind == KindPhony && len(j.Targets) != 1 {
		return nil, &PhonyMultiTargetError{Targets: j.Targets}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range j.Targets {
		if existing, ok := s.byTarget[t]; ok {
			if sameAction(existing.action, j.action) {
				return existing, nil
			}
			return nil, &DuplicateTargetError{Target: t}
		}
	}

	j.sequence = s.seq
	s.seq++
	for _, t := range j.Targets {
		s.byTarget[t] = j
	}
	s.all = append(s.all, j)
	return j, nil
}

// Lookup returns the job producing target, if any.
func (s *Set) Lookup(target string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byTarget[target]
	return j, ok
}

// All returns every registered job in declaration order.
func (s *Set) All() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, len(s.all))
	copy(out, s.all)
	return out
}

// Metadata is the URI-keyed options table: credential and keep flags.
//
// Grounded on spec.md §3 "Metadata table" and
// original_source/buildpy/vx/__init__.py's DSL.meta/self.metadata.
type Metadata struct {
	mu      sync.RWMutex
	options map[string]Options
}

// Options holds the recognized per-URI metadata fields.
type Options struct {
	Credential string
	Keep       bool
}

// NewMetadata constructs an empty metadata table.
func NewMetadata() *Metadata {
	return &Metadata{options: make(map[string]Options)}
}

// Set records opts for uri, returning uri unchanged (mirroring DSL.meta's
// "return uri" convenience so callers can inline it in a deps list).
func (m *Metadata) Set(uri string, opts Options) string {
	m.mu.Lock()
	m.options[uri] = opts
	m.mu.Unlock()
	return uri
}

// Get returns the recorded options for uri, or the zero value if none were
// set.
func (m *Metadata) Get(uri string) Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.options[uri]
}
