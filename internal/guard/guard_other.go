//go:build !windows

package guard

// Other platforms have no stateless keep-awake call.
func newGuard() Guard { return Nop{} }
