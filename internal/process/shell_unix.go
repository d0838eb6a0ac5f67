//go:build !windows

package process

import "os/exec"

// DefaultScript is the launcher file name looked up in the working directory.
const DefaultScript = "run.sh"

// launcherCommand runs script with /bin/sh on Unix systems
func launcherCommand(script string, args []string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", append([]string{script}, args...)...)
}
