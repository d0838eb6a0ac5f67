package process

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Spec describes the launcher a Handle runs.
type Spec struct {
	Name    string   `json:"name"`
	Script  string   `json:"script"`   // launcher file, relative to WorkDir unless absolute
	Args    []string `json:"args"`     // extra arguments passed to the launcher
	WorkDir string   `json:"work_dir"` // working directory; empty means inherit
	Env     []string `json:"env"`      // extra KEY=VALUE pairs appended to the parent environment
}

// ScriptPath resolves the launcher against WorkDir.
func (s Spec) ScriptPath() string {
	if s.Script == "" || filepath.IsAbs(s.Script) || s.WorkDir == "" {
		return s.Script
	}
	return filepath.Join(s.WorkDir, s.Script)
}

// BuildCommand constructs the *exec.Cmd for the launcher. The launcher is
// always run through the platform shell so it does not need the exec bit.
func (s Spec) BuildCommand() *exec.Cmd {
	cmd := launcherCommand(s.ScriptPath(), s.Args)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	return cmd
}
