package pool

import (
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// terminateSubprocesses walks the current process's descendant tree and
// sends a termination signal to each, mirroring the original's
// psutil.Process().children(recursive=True) sweep
// (original_source/buildpy/vx/__init__.py:_terminate_subprocesses).
// gopsutil's Children only returns direct children, so the recursive walk is
// done by hand.
func terminateSubprocesses(logger *slog.Logger) {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	seen := map[int32]bool{self.Pid: true}
	var descendants []*process.Process
	collectDescendants(self, seen, &descendants)

	for _, p := range descendants {
		if err := p.Terminate(); err != nil {
			logger.Info("failed to terminate subprocess", "pid", p.Pid, "error", err)
		}
	}
}

func collectDescendants(p *process.Process, seen map[int32]bool, out *[]*process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		if seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true
		*out = append(*out, c)
		collectDescendants(c, seen, out)
	}
}
