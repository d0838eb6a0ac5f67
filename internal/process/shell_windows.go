//go:build windows

package process

import "os/exec"

// DefaultScript is the launcher file name looked up in the working directory.
const DefaultScript = "run.cmd"

// launcherCommand runs script through cmd.exe on Windows systems
func launcherCommand(script string, args []string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", append([]string{"/c", script}, args...)...)
}
