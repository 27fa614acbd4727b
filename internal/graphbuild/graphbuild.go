// Package graphbuild resolves a set of root targets against a declared job
// table into the subgraph reachable from those roots, detecting cycles and
// synthesizing leaf jobs for undeclared dependencies.
//
// Grounded on spec.md §4.3 and, for the deterministic cycle witness, on the
// teacher's internal/dag/validate.go (gray/black DFS coloring with parent
// links to reconstruct one cycle path).
package graphbuild

import (
	"fmt"
	"sort"
	"strings"

	"buildweaver/internal/job"
)

// CycleError reports a dependency cycle discovered during traversal. Chain is
// the call stack at the moment the cycle closed, in traversal order; Closing
// is the target whose re-visit closed it.
type CycleError struct {
	Closing string
	Chain   []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graphbuild: dependency cycle: %s -> %s", strings.Join(e.Chain, " -> "), e.Closing)
}

// NoRuleError is the error a synthetic leaf job's action returns when the
// engine actually tries to execute it: the dependency was never declared and
// was not named in --cut.
type NoRuleError struct {
	Target string
}

func (e *NoRuleError) Error() string {
	return fmt.Sprintf("no rule to make %q", e.Target)
}

// Graph is the subgraph reachable from a set of roots: every job in it has
// its dependency jobs resolved and ordered by (priority, declaration order).
type Graph struct {
	Roots    []*job.Job
	All      []*job.Job
	Children map[*job.Job][]*job.Job
}

// ChildrenOf returns g's resolved, ordered dependency jobs for j.
func (g *Graph) ChildrenOf(j *job.Job) []*job.Job {
	return g.Children[j]
}

type state int

const (
	white state = iota
	gray
	black
)

type builder struct {
	jobs     *job.Set
	meta     *job.Metadata
	cut      map[string]bool
	state    map[*job.Job]state
	children map[*job.Job][]*job.Job
	all      []*job.Job
	allSeen  map[*job.Job]bool
	synth    map[string]*job.Job
}

// Build resolves roots against jobs, synthesizing leaf jobs for any
// dependency absent from the table. Targets named in cut are treated as
// external inputs rather than build failures: their producing job (if any
// was declared) is bypassed and a no-op external-input leaf stands in for
// it instead.
func Build(jobs *job.Set, meta *job.Metadata, roots []string, cut map[string]bool) (*Graph, error) {
	b := &builder{
		jobs:     jobs,
		meta:     meta,
		cut:      cut,
		state:    make(map[*job.Job]state),
		children: make(map[*job.Job][]*job.Job),
		allSeen:  make(map[*job.Job]bool),
		synth:    make(map[string]*job.Job),
	}

	g := &Graph{Children: b.children}
	for _, r := range roots {
		j, err := b.visit(r, nil)
		if err != nil {
			return nil, err
		}
		g.Roots = append(g.Roots, j)
	}
	g.All = b.all
	return g, nil
}

// visit resolves target to its job and, if not already fully processed,
// recurses into its dependencies. chain is the list of targets currently on
// the traversal stack, used to name a cycle if one closes here.
func (b *builder) visit(target string, chain []string) (*job.Job, error) {
	j, err := b.resolve(target)
	if err != nil {
		return nil, err
	}

	switch b.state[j] {
	case gray:
		return nil, &CycleError{Closing: target, Chain: append([]string(nil), chain...)}
	case black:
		return j, nil
	}

	b.state[j] = gray
	nextChain := append(chain, target)

	children := make([]*job.Job, 0, len(j.DepsUnique))
	for _, d := range j.DepsUnique {
		cj, err := b.visit(d, nextChain)
		if err != nil {
			return nil, err
		}
		children = append(children, cj)
	}
	sort.SliceStable(children, func(i, k int) bool {
		if children[i].Priority != children[k].Priority {
			return children[i].Priority < children[k].Priority
		}
		return children[i].Sequence() < children[k].Sequence()
	})
	b.children[j] = children

	b.state[j] = black
	if !b.allSeen[j] {
		b.allSeen[j] = true
		b.all = append(b.all, j)
	}
	return j, nil
}

// resolve looks target up in the job table, synthesizing a leaf if absent
// or if --cut names it.
func (b *builder) resolve(target string) (*job.Job, error) {
	existing, hasRule := b.jobs.Lookup(target)
	if hasRule && !b.cut[target] {
		return existing, nil
	}

	if sj, ok := b.synth[target]; ok {
		return sj, nil
	}

	var sj *job.Job
	if b.cut[target] {
		sj = job.NewFile([]string{target}, nil, "external input (--cut)", false, false, job.DefaultPriority, nil)
		_ = sj.SetAction(func(*job.Job) error { return nil })
	} else {
		sj = job.NewFile([]string{target}, nil, "no rule to make "+target, false, false, job.DefaultPriority, nil)
		t := target
		_ = sj.SetAction(func(*job.Job) error { return &NoRuleError{Target: t} })
	}

	if b.meta != nil {
		b.meta.Set(target, job.Options{Keep: true})
	}

	// When target already has a real declared job (the --cut-with-a-rule
	// case), the job table keeps its original declaration; registering the
	// synthetic replacement under the same target would collide in
	// Set.Add's duplicate-target check. The replacement only needs to live
	// in this build's synth cache, not the shared job table.
	if hasRule {
		b.synth[target] = sj
		return sj, nil
	}

	registered, err := b.jobs.Add(sj)
	if err != nil {
		return nil, err
	}
	b.synth[target] = registered
	return registered, nil
}
