package graphbuild_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildweaver/internal/graphbuild"
	"buildweaver/internal/job"
)

func addFile(t *testing.T, set *job.Set, target string, deps []string, priority int) *job.Job {
	t.Helper()
	j := job.NewFile([]string{target}, deps, "", false, false, priority, nil)
	require.NoError(t, j.SetAction(func(*job.Job) error { return nil }))
	registered, err := set.Add(j)
	require.NoError(t, err)
	return registered
}

func TestBuild_ResolvesLinearChain(t *testing.T) {
	set := job.NewSet()
	addFile(t, set, "a", nil, 0)
	addFile(t, set, "b", []string{"a"}, 0)
	addFile(t, set, "c", []string{"b"}, 0)

	g, err := graphbuild.Build(set, job.NewMetadata(), []string{"c"}, nil)
	require.NoError(t, err)
	require.Len(t, g.Roots, 1)
	assert.Equal(t, "c", g.Roots[0].PrimaryTarget())
	assert.Len(t, g.Children[g.Roots[0]], 1)
	assert.Equal(t, "b", g.Children[g.Roots[0]][0].PrimaryTarget())
}

func TestBuild_DetectsCycle(t *testing.T) {
	set := job.NewSet()
	addFile(t, set, "a", []string{"b"}, 0)
	addFile(t, set, "b", []string{"a"}, 0)

	_, err := graphbuild.Build(set, job.NewMetadata(), []string{"a"}, nil)
	var cycleErr *graphbuild.CycleError
	require.True(t, errors.As(err, &cycleErr))
}

func TestBuild_SynthesizesNoRuleLeafForUndeclaredDep(t *testing.T) {
	set := job.NewSet()
	addFile(t, set, "out", []string{"missing.txt"}, 0)

	g, err := graphbuild.Build(set, job.NewMetadata(), []string{"out"}, nil)
	require.NoError(t, err)

	leaf := g.Children[g.Roots[0]][0]
	assert.Equal(t, "missing.txt", leaf.PrimaryTarget())
	execErr := leaf.Execute()
	var noRule *graphbuild.NoRuleError
	require.True(t, errors.As(execErr, &noRule))
	assert.Equal(t, "missing.txt", noRule.Target)
}

func TestBuild_CutTargetBecomesExternalInput(t *testing.T) {
	set := job.NewSet()
	cutTargetRan := false
	cut := job.NewFile([]string{"generated.txt"}, nil, "", false, false, 0, nil)
	require.NoError(t, cut.SetAction(func(*job.Job) error { cutTargetRan = true; return nil }))
	_, err := set.Add(cut)
	require.NoError(t, err)
	addFile(t, set, "out", []string{"generated.txt"}, 0)

	g, err := graphbuild.Build(set, job.NewMetadata(), []string{"out"}, map[string]bool{"generated.txt": true})
	require.NoError(t, err)

	leaf := g.Children[g.Roots[0]][0]
	require.NoError(t, leaf.Execute())
	assert.False(t, cutTargetRan, "the cut job's own action must never run")
}

func TestBuild_ChildrenSortedByPriorityThenSequence(t *testing.T) {
	set := job.NewSet()
	addFile(t, set, "low-pri-first", nil, 5)
	addFile(t, set, "high-pri-second", nil, 1)
	addFile(t, set, "root", []string{"low-pri-first", "high-pri-second"}, 0)

	g, err := graphbuild.Build(set, job.NewMetadata(), []string{"root"}, nil)
	require.NoError(t, err)

	kids := g.Children[g.Roots[0]]
	require.Len(t, kids, 2)
	assert.Equal(t, "high-pri-second", kids[0].PrimaryTarget())
	assert.Equal(t, "low-pri-first", kids[1].PrimaryTarget())
}

func TestBuild_DiamondDependencyVisitedOnce(t *testing.T) {
	set := job.NewSet()
	addFile(t, set, "base", nil, 0)
	addFile(t, set, "left", []string{"base"}, 0)
	addFile(t, set, "right", []string{"base"}, 0)
	addFile(t, set, "top", []string{"left", "right"}, 0)

	g, err := graphbuild.Build(set, job.NewMetadata(), []string{"top"}, nil)
	require.NoError(t, err)

	count := 0
	for _, j := range g.All {
		if j.PrimaryTarget() == "base" {
			count++
		}
	}
	assert.Equal(t, 1, count, "a diamond-shared dependency appears once in All")
}
