// Package job defines the declarative and mutable-state model of a build job:
// the File and Phony job variants, the metadata table, and the job table that
// indexes jobs by the targets they produce.
//
// Grounded on spec.md §3 and on original_source/buildpy/vx/__init__.py's
// _Job/_FileJob/_PhonyJob hierarchy.
package job

import (
	"fmt"
	"reflect"
	"sync"
)

// Action is the callable a job runs to produce its targets.
type Action func(j *Job) error

// noop is the default action for a job with none declared.
func noop(*Job) error { return nil }

// DefaultPriority is the priority assigned when a job's declaration omits
// one. Lower values are more eligible; ties break on declaration order.
const DefaultPriority = 0

// Kind distinguishes file jobs from phony jobs.
type Kind int

const (
	// KindFile is a job that produces one or more concrete URI targets.
	KindFile Kind = iota
	// KindPhony is a job with a single symbolic target and no filesystem identity.
	KindPhony
)

// Data is an open, user-provided key/value bag attached to a Job. The engine
// never reads it; only user actions do.
type Data map[string]any

func (d Data) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (d Data) Int(key string) (int, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

func (d Data) Bool(key string) (bool, bool) {
	v, ok := d[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Stepper is the coordinator-facing handle a Job's cooperative task is stored
// as. It is defined here as an interface (rather than importing the
// coordinator package) to avoid a dependency cycle: coordinator depends on
// job, not the reverse.
type Stepper interface {
	Done() bool
}

// Job is a declared unit of work: targets produced from dependencies via an
// action, plus the mutable state accumulated as the job runs.
type Job struct {
	Kind Kind

	Targets    []string
	Deps       []string
	DepsUnique []string // deps, deduplicated, first-occurrence order preserved

	action   Action
	Priority int
	Serial   bool // file jobs only
	UseHash  bool // file jobs only
	Desc     string

	Data Data

	// sequence is the declaration order, used to break priority ties.
	sequence int

	mu        sync.Mutex
	Task      Stepper
	done      chan struct{}
	doneOnce  sync.Once
	executed  bool
	successed bool
}

func dedupFirstOccurrence(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func newJob(kind Kind, targets, deps []string, desc string, priority int, data Data) *Job {
	if data == nil {
		data = Data{}
	}
	return &Job{
		Kind:       kind,
		Targets:    append([]string(nil), targets...),
		Deps:       append([]string(nil), deps...),
		DepsUnique: dedupFirstOccurrence(deps),
		Desc:       desc,
		Priority:   priority,
		action:     noop,
		Data:       data,
		done:       make(chan struct{}),
	}
}

// NewFile constructs a file job. It does not register the job: pass the
// result to Set.Add (as dsl.Build.File does) to bind it under its targets.
func NewFile(targets, deps []string, desc string, useHash, serial bool, priority int, data Data) *Job {
	j := newJob(KindFile, targets, deps, desc, priority, data)
	j.UseHash = useHash
	j.Serial = serial
	return j
}

// NewPhony constructs a phony job with exactly one symbolic target.
func NewPhony(target string, deps []string, desc string, priority int, data Data) (*Job, error) {
	if target == "" {
		return nil, fmt.Errorf("job: phony target must not be empty")
	}
	return newJob(KindPhony, []string{target}, deps, desc, priority, data), nil
}

// SetAction binds j's action. Rebinding with the same function is a no-op;
// rebinding with a different one is fatal, matching the original's precedent
// for re-registering the same job object (see DESIGN.md, Open Questions).
func (j *Job) SetAction(f Action) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.action == nil || isNoop(j.action) {
		j.action = f
		return nil
	}
	if sameAction(j.action, f) {
		return nil
	}
	return fmt.Errorf("job: action for %v is overwritten by a different action", j.Targets)
}

func isNoop(f Action) bool {
	return sameAction(f, noop)
}

// sameAction approximates the original's object-identity check for rebinding
// the same job twice. Go funcs are not comparable with ==, so this compares
// the underlying code pointers via reflect — true for the same function
// value, and also for two closures created from the same function literal
// even when they capture different values; false for functions from
// distinct literals or declarations, even if behaviorally identical.
func sameAction(a, b Action) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Execute runs the job's bound action. The worker pool calls this at most
// once per job, after need_update has determined the job is stale.
func (j *Job) Execute() error {
	return j.action(j)
}

// MarkExecuted records that the action actually ran.
func (j *Job) MarkExecuted() {
	j.mu.Lock()
	j.executed = true
	j.mu.Unlock()
}

// MarkSuccessed records that the job reached a terminal OK state.
func (j *Job) MarkSuccessed() {
	j.mu.Lock()
	j.successed = true
	j.mu.Unlock()
}

// Executed reports whether the action actually ran.
func (j *Job) Executed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.executed
}

// Successed reports whether the job reached a terminal OK state.
func (j *Job) Successed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.successed
}

// Done returns a channel that closes exactly once, when the job terminates.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// IsDone reports whether Done has already fired.
func (j *Job) IsDone() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// SetDone fires the done event. Safe to call more than once.
func (j *Job) SetDone() {
	j.doneOnce.Do(func() { close(j.done) })
}

// SetTask attaches the cooperative task backing this job's invocation. It is
// a one-shot field: the first caller wins, matching "the task is created
// lazily on first invocation and is single-use."
//
// Returns the task that ended up attached (existing one, if a race lost) and
// whether this call won the race.
func (j *Job) SetTask(make func() Stepper) (Stepper, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Task != nil {
		return j.Task, false
	}
	j.Task = make()
	return j.Task, true
}

// Sequence returns the declaration-order index used to break priority ties.
func (j *Job) Sequence() int { return j.sequence }

// PrimaryTarget returns the first declared target, used for logging and the
// synthetic "no rule to make" job naming.
func (j *Job) PrimaryTarget() string {
	if len(j.Targets) == 0 {
		return ""
	}
	return j.Targets[0]
}

// String renders a short, log-friendly representation, mirroring the
// original's __repr__ truncation of long dependency lists.
func (j *Job) String() string {
	kind := "FileJob"
	if j.Kind == KindPhony {
		kind = "PhonyJob"
	}
	deps := j.Deps
	if len(deps) > 4 {
		deps = append(append([]string{}, deps[:2]...), "…")
	}
	if j.Kind == KindFile {
		return fmt.Sprintf("%s(%v, %v, serial=%v)", kind, j.Targets, deps, j.Serial)
	}
	return fmt.Sprintf("%s(%v, %v)", kind, j.Targets, deps)
}
