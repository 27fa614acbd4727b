// Package pool implements the two-queue elastic worker pool: a general
// queue drained by any worker and a serial queue gated by a counting
// semaphore, with load-average admission control and keep-going error
// aggregation.
//
// Grounded on spec.md §4.5 and original_source/buildpy/vx/__init__.py's
// _ThreadPool.
package pool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/load"

	"buildweaver/internal/job"
	"buildweaver/internal/oracle"
	"buildweaver/internal/resource"
	"buildweaver/internal/trace"
	"buildweaver/internal/uri"
)

const generalQueueTimeout = 10 * time.Millisecond

// LoadAverageSampler reports the current 1-minute OS load average. Swapped
// out in tests; production callers get loadAvg1, backed by
// github.com/shirou/gopsutil/v3/load.
type LoadAverageSampler func() (float64, error)

func loadAvg1() (float64, error) {
	stat, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return stat.Load1, nil
}

// DeferredError pairs a job with the error its action raised, recorded under
// keep-going instead of triggering immediate shutdown.
type DeferredError struct {
	Job *job.Job
	Err error
}

// Options configures a Pool. New raises an NMax or NSerial below 1 to 1.
type Options struct {
	NMax    int
	NSerial int
	// LoadAverage is the admission threshold; nil means "not set" (defaults
	// to +Inf, disabling the gate). 0.0 is a legal, distinct value from
	// unset: it means no additional job may start while any job is running.
	LoadAverage *float64
	KeepGoing   bool
	DryRun      bool

	Oracle   *oracle.Oracle
	Jobs     *job.Set
	Metadata *job.Metadata
	Registry *resource.Registry

	Logger *slog.Logger
	Stdout io.Writer

	// DieHooks run once, in order, the first time the pool shuts down.
	DieHooks []func()
	// Cancel is invoked as the last step of shutdown, standing in for the
	// original's _thread.interrupt_main().
	Cancel context.CancelFunc

	LoadSampler LoadAverageSampler

	// Trace, if set, receives one Event per completed job (--trace PATH).
	Trace *trace.Writer
}

// Pool is the two-queue elastic worker pool.
type Pool struct {
	opts        Options
	loadAverage float64 // resolved from opts.LoadAverage; +Inf if unset

	generalQ *priorityQueue
	serialQ  *priorityQueue
	serialSem chan struct{}

	threads  int32
	nRunning int32
	stopFlag int32

	wg sync.WaitGroup

	deferredMu sync.Mutex
	deferred   []DeferredError

	shutdownOnce sync.Once
}

// New constructs a Pool. NMax and NSerial default to 1 if zero; LoadAverage
// defaults to +Inf (no gating) if nil.
func New(opts Options) *Pool {
	if opts.NMax <= 0 {
		opts.NMax = 1
	}
	if opts.NSerial <= 0 {
		opts.NSerial = 1
	}
	loadAverage := math.Inf(1)
	if opts.LoadAverage != nil {
		loadAverage = *opts.LoadAverage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.LoadSampler == nil {
		opts.LoadSampler = loadAvg1
	}

	sem := make(chan struct{}, opts.NSerial)
	for i := 0; i < opts.NSerial; i++ {
		sem <- struct{}{}
	}

	return &Pool{
		opts:        opts,
		loadAverage: loadAverage,
		generalQ:    newPriorityQueue(),
		serialQ:     newPriorityQueue(),
		serialSem:   sem,
	}
}

// Submit enqueues j (routing serial jobs to the serial queue) and spawns a
// new worker if the elastic-growth condition holds.
func (p *Pool) Submit(ctx context.Context, j *job.Job) {
	if p.Stopped() {
		return
	}
	if j.Serial {
		p.serialQ.Push(j)
	} else {
		p.generalQ.Push(j)
	}
	p.maybeSpawnWorker(ctx)
}

// Stopped reports whether the pool has begun shutdown.
func (p *Pool) Stopped() bool {
	return atomic.LoadInt32(&p.stopFlag) != 0
}

// DeferredErrors returns the errors accumulated under keep-going, in the
// order they occurred.
func (p *Pool) DeferredErrors() []DeferredError {
	p.deferredMu.Lock()
	defer p.deferredMu.Unlock()
	out := make([]DeferredError, len(p.deferred))
	copy(out, p.deferred)
	return out
}

// Drain blocks until every worker goroutine has exited (elastic shrink, or
// shutdown). Intended for tests and for a clean process exit after the
// driver's root targets have all completed.
func (p *Pool) Drain() {
	p.wg.Wait()
}

// maybeSpawnWorker implements the elastic-growth rule: always spawn the
// first worker; beyond that, spawn only while under the thread cap and the
// load average is at or below the gating threshold.
func (p *Pool) maybeSpawnWorker(ctx context.Context) {
	current := atomic.LoadInt32(&p.threads)

	spawn := current < 1
	if !spawn && current < int32(p.opts.NMax) {
		avg, err := p.opts.LoadSampler()
		if err != nil || avg <= p.loadAverage {
			spawn = true
		}
	}
	if !spawn {
		return
	}

	atomic.AddInt32(&p.threads, 1)
	p.wg.Add(1)
	go p.worker(ctx)
}

func (p *Pool) worker(ctx context.Context) {
	defer func() {
		atomic.AddInt32(&p.threads, -1)
		p.wg.Done()
	}()

	for {
		if p.Stopped() {
			return
		}

		var j *job.Job
		viaSerial := false

		select {
		case <-p.serialSem:
			if sj, ok := p.serialQ.TryPop(); ok {
				j = sj
				viaSerial = true
			} else {
				p.serialSem <- struct{}{}
			}
		default:
		}

		if j == nil {
			gj, ok := p.generalQ.Pop(generalQueueTimeout)
			if !ok {
				return
			}
			j = gj
		}

		p.process(ctx, j, viaSerial)
	}
}

func (p *Pool) process(ctx context.Context, j *job.Job, viaSerial bool) {
	start := time.Now()
	defer func() {
		j.SetDone()
		if viaSerial {
			p.serialSem <- struct{}{}
		}
	}()

	need, err := p.needUpdate(ctx, j)
	if err != nil {
		need = true
	}
	if !need {
		j.MarkSuccessed()
		p.emitTrace(j, false, nil, start)
		return
	}

	if p.opts.DryRun {
		p.printWouldExecute(j)
		j.MarkExecuted()
		j.MarkSuccessed()
		p.emitTrace(j, true, nil, start)
		return
	}

	if !math.IsInf(p.loadAverage, 1) {
		for atomic.LoadInt32(&p.nRunning) > 0 {
			avg, err := p.opts.LoadSampler()
			if err == nil && avg <= p.loadAverage {
				break
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}

	atomic.AddInt32(&p.nRunning, 1)
	execErr := j.Execute()
	atomic.AddInt32(&p.nRunning, -1)

	if execErr != nil {
		p.opts.Logger.Error("action failed", "job", j.String(), "error", execErr)
		p.rmTargets(ctx, j)
		p.emitTrace(j, true, execErr, start)
		if p.opts.KeepGoing {
			p.deferredMu.Lock()
			p.deferred = append(p.deferred, DeferredError{Job: j, Err: execErr})
			p.deferredMu.Unlock()
		} else {
			p.shutdown(execErr)
		}
		return
	}

	j.MarkExecuted()
	j.MarkSuccessed()
	p.emitTrace(j, true, nil, start)
}

// emitTrace writes one trace.Event per completed job when --trace is active.
// The event's target is the job's first declared target since a trace line is
// per-job, not per-target; a job's remaining targets are implied by a -J
// dump and need not be repeated here.
func (p *Pool) emitTrace(j *job.Job, executed bool, execErr error, start time.Time) {
	if p.opts.Trace == nil {
		return
	}
	target := j.String()
	if len(j.Targets) > 0 {
		target = j.Targets[0]
	}
	ev := trace.Event{
		Target:     target,
		Executed:   executed,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if execErr != nil {
		ev.Error = execErr.Error()
	}
	if err := p.opts.Trace.Write(ev); err != nil {
		p.opts.Logger.Warn("failed to write trace event", "target", target, "error", err)
	}
}

// needUpdate decides whether j's action should run: phony jobs are always
// "needed" (their execution is informational), a dry run additionally
// propagates "would execute" from any already-invalidated dependency, and
// everything else defers to the staleness oracle.
func (p *Pool) needUpdate(ctx context.Context, j *job.Job) (bool, error) {
	if j.Kind == job.KindPhony {
		return true, nil
	}

	if p.opts.DryRun {
		for _, d := range j.DepsUnique {
			if dep, ok := p.opts.Jobs.Lookup(d); ok && dep.Executed() {
				return true, nil
			}
		}
	}

	credFor := func(u string) string { return p.opts.Metadata.Get(u).Credential }
	return p.opts.Oracle.NeedsUpdate(ctx, j.Targets, credFor, j.DepsUnique, credFor, j.UseHash)
}

func (p *Pool) printWouldExecute(j *job.Job) {
	for _, t := range j.Targets {
		fmt.Fprintln(p.opts.Stdout, t)
	}
	for _, d := range j.Deps {
		fmt.Fprintln(p.opts.Stdout, "\t"+d)
	}
	fmt.Fprintln(p.opts.Stdout)
}

// rmTargets removes every target j declared, skipping any marked keep=true
// in the metadata table (synthetic "no rule" and cut leaves, and anything a
// user explicitly protected).
func (p *Pool) rmTargets(ctx context.Context, j *job.Job) {
	p.opts.Logger.Info("removing targets after failure", "job", j.String())

	seen := make(map[string]bool)
	for _, t := range j.Targets {
		if seen[t] {
			continue
		}
		seen[t] = true

		if p.opts.Metadata.Get(t).Keep {
			continue
		}

		u, err := uri.Parse(t)
		if err != nil {
			continue
		}
		adapter, err := p.opts.Registry.Lookup(u.Scheme)
		if err != nil {
			continue
		}
		if err := adapter.Remove(ctx, t, p.opts.Metadata.Get(t).Credential); err != nil {
			p.opts.Logger.Info("failed to remove target", "target", t, "error", err)
		}
	}
}

// shutdown runs at most once: sets the stop flag, runs die hooks, sweeps
// subprocesses, and cancels the run's context.
func (p *Pool) shutdown(cause error) {
	p.shutdownOnce.Do(func() {
		atomic.StoreInt32(&p.stopFlag, 1)
		p.opts.Logger.Error("execution failed, shutting down", "error", cause)
		for _, h := range p.opts.DieHooks {
			h()
		}
		terminateSubprocesses(p.opts.Logger)
		if p.opts.Cancel != nil {
			p.opts.Cancel()
		}
	})
}

// Shutdown triggers the same shutdown sequence as a fatal action error,
// for use by the driver on user interruption (SIGINT/SIGTERM).
func (p *Pool) Shutdown() {
	p.shutdown(fmt.Errorf("pool: shutdown requested"))
}
