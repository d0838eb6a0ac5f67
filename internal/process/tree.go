package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// descendants returns the PIDs of every process below pid, breadth first.
// It must run before the parent is killed; orphans get reparented and can no
// longer be found through the tree.
func descendants(pid int) []int32 {
	root, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	var out []int32
	seen := map[int32]bool{root.Pid: true}
	queue := []*gopsproc.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, c.Pid)
			queue = append(queue, c)
		}
	}
	return out
}

// killPIDs kills each pid best-effort; processes that are already gone are ignored.
func killPIDs(pids []int32) {
	for _, pid := range pids {
		p, err := gopsproc.NewProcess(pid)
		if err != nil {
			continue
		}
		_ = p.Kill()
	}
}
