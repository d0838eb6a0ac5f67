package supervisor

import "errors"

var (
	// ErrScriptMissing is returned by Start when the launcher file does not exist.
	ErrScriptMissing = errors.New("launch script missing")
	// ErrSpawnFailure is returned by Start when the OS refused to create the process.
	ErrSpawnFailure = errors.New("spawn failed")
	// ErrTerminationTimeout is returned by Stop when the runner did not exit in time.
	ErrTerminationTimeout = errors.New("runner did not terminate in time")
	// ErrRestartSuppressed marks an automatic restart denied by the restart window.
	ErrRestartSuppressed = errors.New("restart suppressed")
)
