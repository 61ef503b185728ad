// Package privsep holds the privilege-separated account/path constants
// (original_source/keepalived.h) and the Capset abstraction for the
// capability-set reductions applied at each lifecycle phase.
package privsep

import (
	"fmt"
	"os/user"

	"golang.org/x/sys/unix"
)

const (
	// GroupShutdown is the group whose members are allowed to run the
	// shutdown binary (original_source/keepalived.h: GRP_SHUTDOWN).
	GroupShutdown = "_shutdown"
	// DefaultTimeoutSeconds is the inactivity timeout used when a config
	// omits one (original_source/keepalived.h: KEEPALIVED_TIMEOUT).
	DefaultTimeoutSeconds = 300
	// UserSession is the account the child/session process drops to
	// (original_source/keepalived.h: KEEPALIVED_USER).
	UserSession = "_keepalived"
	// UserParent is the account the parent drops to once the child is
	// running (original_source/keepalived.h: KEEPALIVED_USER_PRIV).
	UserParent = "_keepalived-priv"
	// DefaultConfigPath is used when -f is not given.
	DefaultConfigPath = "/etc/keepalive.conf"
	// DefaultSessionPath is the child/session binary the parent execs.
	DefaultSessionPath = "/usr/local/libexec/keepalived-session"
	// DefaultShutdownPath is the shutdown binary invoked on timer expiry.
	DefaultShutdownPath = "/sbin/shutdown"
	// ChildIPCFd is the fixed file descriptor the child expects its end of
	// the IPC socketpair on after exec (original_source/session.c: PARENT_FD).
	ChildIPCFd = 3
	// DebugEnv is set by the parent in the child's environment when `-d` is
	// given, forwarding the verbose flag across exec so the child can log
	// unauthorized datagrams at Debug level.
	DebugEnv = "KEEPALIVED_SESSION_DEBUG"
)

// Identity is the resolved uid/gid/supplementary-group set for an account
// name, the Go equivalent of getpwnam(3)/getgrnam(3) in keepalived_init and
// session_init.
type Identity struct {
	UID int
	GID int
}

// LookupUser resolves name via the OS user database. A missing account is an
// InitError at startup, exactly as a failing getpwnam call is in the C
// original.
func LookupUser(name string) (Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Identity{}, fmt.Errorf("privsep: lookup user %q: %w", name, err)
	}
	var id Identity
	if _, err := fmt.Sscanf(u.Uid, "%d", &id.UID); err != nil {
		return Identity{}, fmt.Errorf("privsep: parse uid for %q: %w", name, err)
	}
	if _, err := fmt.Sscanf(u.Gid, "%d", &id.GID); err != nil {
		return Identity{}, fmt.Errorf("privsep: parse gid for %q: %w", name, err)
	}
	return id, nil
}

// LookupGroup resolves a group name to a gid, the Go equivalent of
// getgrnam(3) (used for GroupShutdown in keepalived_init).
func LookupGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("privsep: lookup group %q: %w", name, err)
	}
	var gid int
	if _, err := fmt.Sscanf(g.Gid, "%d", &gid); err != nil {
		return 0, fmt.Errorf("privsep: parse gid for %q: %w", name, err)
	}
	return gid, nil
}

// DropPrivileges permanently drops the calling process to id's uid/gid, with
// suppGID as the
// sole supplementary group. It is equivalent to the C original's
// setgroups(1,&gid) + setresgid + setresuid sequence, and must be called
// before any untrusted code runs in that process.
func DropPrivileges(id Identity, suppGID int) error {
	if err := unix.Setgroups([]int{suppGID}); err != nil {
		return fmt.Errorf("privsep: setgroups: %w", err)
	}
	if err := unix.Setresgid(id.GID, id.GID, id.GID); err != nil {
		return fmt.Errorf("privsep: setresgid: %w", err)
	}
	if err := unix.Setresuid(id.UID, id.UID, id.UID); err != nil {
		return fmt.Errorf("privsep: setresuid: %w", err)
	}
	return nil
}
