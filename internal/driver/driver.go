// Package driver wires graphbuild, coordinator, and pool into the
// top-level invocation the CLI presents: build the graph, either dump it in
// one of the requested formats or execute it, then report.
//
// Grounded on spec.md §4.6 and original_source/buildpy/vx/__init__.py's
// DSL.run.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"

	"buildweaver/internal/coordinator"
	"buildweaver/internal/dsl"
	"buildweaver/internal/graphbuild"
	"buildweaver/internal/job"
	"buildweaver/internal/oracle"
	"buildweaver/internal/pool"
	"buildweaver/internal/resource"
	"buildweaver/internal/trace"
)

// ExitFailed is returned by Run when the build completed but one or more
// jobs failed (keep-going) or the pool shut down on a fatal error.
const ExitFailed = 1

// Options configures one invocation.
type Options struct {
	Targets []string

	NMax        int
	NSerial     int
	LoadAverage float64
	KeepGoing   bool
	DryRun      bool
	Cut         []string

	Descriptions  bool
	Dependencies  bool
	DependenciesDot  *string // nil: flag absent. "": flag present, no path (stdout).
	DependenciesJSON *string

	TraceWriter io.Writer // non-nil enables --trace

	Logger *slog.Logger
	Stdout io.Writer
}

// Driver holds the declared build (jobs, metadata, resource registry,
// oracle) that a CLI entrypoint constructs once per process.
type Driver struct {
	Build    *dsl.Build
	Registry *resource.Registry
	Oracle   *oracle.Oracle
}

// New constructs a Driver. cacheDir is the hash-cache root (CACHE_DIR).
func New(build *dsl.Build, registry *resource.Registry, cacheDir string) *Driver {
	return &Driver{
		Build:    build,
		Registry: registry,
		Oracle:   oracle.New(registry, cacheDir),
	}
}

// Run executes one invocation: dump-and-exit, or build-and-execute.
func (d *Driver) Run(ctx context.Context, opts Options) (int, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Descriptions {
		printDescriptions(opts.Stdout, d.Build.Jobs.All())
		return 0, nil
	}
	if opts.Dependencies {
		printDependencies(opts.Stdout, d.Build.Jobs.All())
		return 0, nil
	}
	if opts.DependenciesJSON != nil {
		return 0, writeTo(opts.Stdout, *opts.DependenciesJSON, dependenciesJSON(d.Build.Jobs.All()))
	}
	if opts.DependenciesDot != nil {
		return 0, writeTo(opts.Stdout, *opts.DependenciesDot, dependenciesDot(d.Build.Jobs.All()))
	}

	cut := make(map[string]bool, len(opts.Cut))
	for _, t := range opts.Cut {
		cut[t] = true
	}

	graph, err := graphbuild.Build(d.Build.Jobs, d.Build.Metadata, opts.Targets, cut)
	if err != nil {
		return 0, fmt.Errorf("driver: %w", err)
	}

	var tw *trace.Writer
	if opts.TraceWriter != nil {
		tw = trace.NewWriter(opts.TraceWriter)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()

	p := pool.New(pool.Options{
		NMax:        opts.NMax,
		NSerial:     opts.NSerial,
		LoadAverage: &opts.LoadAverage,
		KeepGoing:   opts.KeepGoing,
		DryRun:      opts.DryRun,
		Oracle:      d.Oracle,
		Jobs:        d.Build.Jobs,
		Metadata:    d.Build.Metadata,
		Registry:    d.Registry,
		Logger:      opts.Logger.With("run_id", runID),
		Stdout:      opts.Stdout,
		Cancel:      cancel,
		Trace:       tw,
	})

	// User interruption (cancellation of the caller's ctx) runs the pool's
	// shutdown sequence.
	stopShutdownHook := context.AfterFunc(ctx, p.Shutdown)
	defer stopShutdownHook()

	coord := coordinator.New(graph, p)
	roots := graph.Roots

	opts.Logger.Info("build started", "run_id", runID, "targets", opts.Targets)

	for _, j := range roots {
		coord.Invoke(runCtx, j)
	}
	for _, j := range roots {
		coord.Wait(j)
	}

	p.Drain()

	deferred := p.DeferredErrors()
	if len(deferred) > 0 {
		opts.Logger.Error("following errors have thrown during the execution", "run_id", runID)
		for _, de := range deferred {
			opts.Logger.Error(de.Err.Error(), "job", de.Job.String(), "run_id", runID)
		}
		return ExitFailed, fmt.Errorf("driver: execution failed")
	}
	if p.Stopped() {
		return ExitFailed, fmt.Errorf("driver: execution failed")
	}

	for _, j := range roots {
		if !j.Successed() {
			return ExitFailed, fmt.Errorf("driver: execution failed")
		}
	}

	opts.Logger.Info("build finished", "run_id", runID)
	return 0, nil
}

func printDescriptions(w io.Writer, jobs []*job.Job) {
	type row struct {
		target string
		desc   string
	}
	var rows []row
	for _, j := range jobs {
		for _, t := range dedupe(j.Targets) {
			rows = append(rows, row{t, j.Desc})
		}
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].target < rows[k].target })
	for _, r := range rows {
		fmt.Fprintln(w, r.target)
		if r.desc != "" {
			fmt.Fprintln(w, "\t"+r.desc)
		}
	}
}

func printDependencies(w io.Writer, jobs []*job.Job) {
	sorted := sortedBySortedTargets(jobs)
	for _, j := range sorted {
		for _, t := range dedupe(j.Targets) {
			fmt.Fprintln(w, t)
		}
		for _, dep := range j.DepsUnique {
			fmt.Fprintln(w, "\t"+dep)
		}
	}
}

func sortedBySortedTargets(jobs []*job.Job) []*job.Job {
	out := append([]*job.Job(nil), jobs...)
	sort.SliceStable(out, func(i, k int) bool {
		a := dedupeSorted(out[i].Targets)
		b := dedupeSorted(out[k].Targets)
		return lessStringSlice(a, b)
	})
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func dedupeSorted(items []string) []string {
	out := dedupe(items)
	sort.Strings(out)
	return out
}

func lessStringSlice(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func writeTo(stdout io.Writer, path string, content string) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content+"\n"), 0644)
}
