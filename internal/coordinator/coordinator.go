// Package coordinator orchestrates the structural concurrency of a build:
// walking each job's children, waiting for them to terminate, and deciding
// whether the job itself is eligible to run. Actions execute elsewhere, on
// the worker pool (internal/pool); the coordinator never runs user code.
//
// Grounded on spec.md §4.4 and original_source/buildpy/vx/__init__.py's
// _Job.invoke/_Task/_TaskContext. The original's generator-based cooperative
// scheduler exists to get concurrency without OS threads; Go goroutines
// already are that, so each job's orchestration runs as one goroutine
// blocking on job.Job.Done() rather than as steps driven by a central
// dispatcher. See DESIGN.md for the full reasoning.
package coordinator

import (
	"context"

	"buildweaver/internal/graphbuild"
	"buildweaver/internal/job"
)

// Enqueuer submits a job whose dependencies have all succeeded for
// execution. The implementation (internal/pool) must arrange for j.SetDone
// to fire, directly or indirectly, once the job reaches a terminal state.
type Enqueuer interface {
	Submit(ctx context.Context, j *job.Job)
}

// stepper is the Stepper handle attached to a job via job.Job.SetTask,
// marking that its orchestration goroutine has already been launched.
type stepper struct {
	done chan struct{}
}

func (s *stepper) Done() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Coordinator drives job orchestration over a resolved graph.
type Coordinator struct {
	graph *graphbuild.Graph
	pool  Enqueuer
}

// New constructs a Coordinator over graph, submitting eligible jobs to pool.
func New(graph *graphbuild.Graph, pool Enqueuer) *Coordinator {
	return &Coordinator{graph: graph, pool: pool}
}

// Invoke launches j's orchestration exactly once (races between multiple
// parents sharing j as a dependency are resolved by job.Job.SetTask's
// one-shot attach) and returns immediately. Call Wait to block for
// completion.
func (c *Coordinator) Invoke(ctx context.Context, j *job.Job) {
	j.SetTask(func() job.Stepper {
		s := &stepper{done: make(chan struct{})}
		go c.run(ctx, j, s)
		return s
	})
}

// Wait blocks until j has reached a terminal state.
func (c *Coordinator) Wait(j *job.Job) {
	<-j.Done()
}

func (c *Coordinator) run(ctx context.Context, j *job.Job, s *stepper) {
	defer close(s.done)

	children := c.graph.ChildrenOf(j)
	for _, child := range children {
		c.Invoke(ctx, child)
	}

	for _, child := range children {
		select {
		case <-child.Done():
		case <-ctx.Done():
			j.SetDone()
			return
		}
	}

	for _, child := range children {
		if !child.Successed() {
			// A transitive dependency failed or was skipped: this job never
			// becomes eligible. Its own action never runs, matching
			// "a job with successed=false in any transitive dependency
			// never has its own action invoked."
			j.SetDone()
			return
		}
	}

	c.pool.Submit(ctx, j)

	select {
	case <-j.Done():
	case <-ctx.Done():
		j.SetDone()
	}
}
