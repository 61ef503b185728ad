package privsep

// Capset abstracts the capability-set reductions applied at each lifecycle
// phase, so both the real OpenBSD pledge/unveil primitives and a documented
// no-op fallback on other platforms present the same interface — audits
// stay meaningful even when the primitive is stubbed because the *phases*
// are still visible as distinct calls.
type Capset interface {
	// RestrictNetworkStdio is applied by the child after session init, before
	// it enters its IPC dispatch loop: networking (to receive on already-bound
	// listeners and read the IPC socketpair) plus stdio only.
	RestrictNetworkStdio() error
	// RestrictStdioOnly is applied by the child immediately after
	// LISTENER_DONE: no further listener sockets will ever be created, so
	// even networking setup capability can be dropped.
	RestrictStdioOnly() error
	// RestrictParentPostInit is applied by the parent once the child is
	// running and configured: wait on children, read the IPC, and exec
	// shutdownPath — and nothing else. In pretend mode the exec capability is
	// withheld entirely.
	RestrictParentPostInit(shutdownPath string) error
}

// NewCapset returns the platform's Capset implementation. pretend controls
// whether RestrictParentPostInit withholds the ability to exec shutdownPath.
func NewCapset(pretend bool) Capset {
	return newPlatformCapset(pretend)
}
