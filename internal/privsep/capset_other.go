//go:build !openbsd

package privsep

// noopCapset is the documented no-op fallback on platforms without an
// equivalent to pledge(2)/unveil(2). The ordering of calls is still enforced
// by the caller — internal/child and internal/parentd call these at the
// same lifecycle points regardless of platform — only the underlying
// restriction is absent.
type noopCapset struct{}

func newPlatformCapset(pretend bool) Capset {
	return noopCapset{}
}

func (noopCapset) RestrictNetworkStdio() error                      { return nil }
func (noopCapset) RestrictStdioOnly() error                         { return nil }
func (noopCapset) RestrictParentPostInit(shutdownPath string) error { return nil }
