//go:build openbsd

package privsep

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pledgeCapset is the real capability-reduction primitive on OpenBSD,
// mirroring original_source/session.c's and keepalived.c's pledge(2)/
// unveil(2) call sites directly.
type pledgeCapset struct {
	pretend bool
}

func newPlatformCapset(pretend bool) Capset {
	return pledgeCapset{pretend: pretend}
}

func (c pledgeCapset) RestrictNetworkStdio() error {
	if err := unix.Pledge("stdio inet", ""); err != nil {
		return fmt.Errorf("privsep: pledge stdio inet: %w", err)
	}
	return nil
}

func (c pledgeCapset) RestrictStdioOnly() error {
	if err := unix.Pledge("stdio", ""); err != nil {
		return fmt.Errorf("privsep: pledge stdio: %w", err)
	}
	return nil
}

func (c pledgeCapset) RestrictParentPostInit(shutdownPath string) error {
	if err := unix.Unveil(shutdownPath, "x"); err != nil {
		return fmt.Errorf("privsep: unveil %s: %w", shutdownPath, err)
	}
	if err := unix.UnveilBlock(); err != nil {
		return fmt.Errorf("privsep: unveil block: %w", err)
	}
	if c.pretend {
		if err := unix.Pledge("stdio proc", ""); err != nil {
			return fmt.Errorf("privsep: pledge stdio proc: %w", err)
		}
		return nil
	}
	if err := unix.Pledge("stdio proc exec", "stdio"); err != nil {
		return fmt.Errorf("privsep: pledge stdio proc exec: %w", err)
	}
	return nil
}
