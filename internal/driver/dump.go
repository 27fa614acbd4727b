package driver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"buildweaver/internal/job"
)

type dependencyEntry struct {
	Targets []string `json:"ts_unique"`
	Deps    []string `json:"ds_unique"`
}

// dependenciesJSON renders the -J dump: one entry per job, targets and deps
// each deduplicated and sorted, entries themselves sorted by their sorted
// target list, matching the original's `sorted(jobs, key=...ts_unique)`
// determinism goal.
func dependenciesJSON(jobs []*job.Job) string {
	entries := make([]dependencyEntry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, dependencyEntry{
			Targets: dedupeSorted(j.Targets),
			Deps:    dedupeSorted(j.DepsUnique),
		})
	}
	sort.SliceStable(entries, func(i, k int) bool {
		return lessStringSlice(entries[i].Targets, entries[k].Targets)
	})

	b, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// dependenciesDot renders the -Q dump: a Graphviz digraph with one action
// node per job, fanning in from its targets and out to its deps.
func dependenciesDot(jobs []*job.Job) string {
	entries := make([]dependencyEntry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, dependencyEntry{
			Targets: dedupeSorted(j.Targets),
			Deps:    dedupeSorted(j.DepsUnique),
		})
	}
	sort.SliceStable(entries, func(i, k int) bool {
		return lessStringSlice(entries[i].Targets, entries[k].Targets)
	})

	var b strings.Builder
	nodeOf := make(map[string]string)
	nextID := 0
	node := func(name string) string {
		if n, ok := nodeOf[name]; ok {
			return n
		}
		nextID++
		n := "n" + strconv.Itoa(nextID)
		nodeOf[name] = n
		fmt.Fprintf(&b, "%s[label=%s]\n", n, strconv.Quote(name))
		return n
	}

	b.WriteString("digraph G{\n")
	for i, e := range entries {
		action := "action" + strconv.Itoa(i)
		fmt.Fprintf(&b, "%s[label=\"o\",shape=point]\n", action)
		for _, t := range e.Targets {
			fmt.Fprintf(&b, "%s -> %s\n", node(t), action)
		}
		for _, d := range e.Deps {
			fmt.Fprintf(&b, "%s -> %s\n", action, node(d))
		}
	}
	b.WriteString("}")
	return b.String()
}
