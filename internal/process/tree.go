package process

import (
	"context"
	"errors"
	"time"

	gproc "github.com/shirou/gopsutil/v4/process"
)

const treeWalkTimeout = 3 * time.Second

// Descendants returns every live descendant of pid, deepest first.
func Descendants(ctx context.Context, pid int) []int {
	root, err := gproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}
	var out []int
	var walk func(p *gproc.Process, depth int)
	walk = func(p *gproc.Process, depth int) {
		if depth > 64 {
			return
		}
		kids, err := p.ChildrenWithContext(ctx)
		if err != nil {
			return
		}
		for _, k := range kids {
			walk(k, depth+1)
			out = append(out, int(k.Pid))
		}
	}
	walk(root, 0)
	return out
}

// KillTree forcibly terminates pid, all of its descendants and its process
// group. Members that are already gone are not errors.
func KillTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), treeWalkTimeout)
	defer cancel()

	var errs []error
	// collect first: killing the root reparents its children
	for _, d := range Descendants(ctx, pid) {
		if err := killPID(d); err != nil {
			errs = append(errs, err)
		}
	}
	if err := killGroup(pid); err != nil {
		errs = append(errs, err)
	}
	if err := killPID(pid); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
