// Package parentd implements the privileged parent/supervisor process:
// socketpair + child process setup, pushing configuration over IPC in the
// documented order, signal handling, and the teardown/shutdown-exec sequence
// (original_source/keepalived.c).
package parentd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/hgojf/keepalive/internal/config"
	"github.com/hgojf/keepalive/internal/ipc"
	"github.com/hgojf/keepalive/internal/ipcproto"
	"github.com/hgojf/keepalive/internal/keepaliveerr"
	"github.com/hgojf/keepalive/internal/logging"
	"github.com/hgojf/keepalive/internal/privsep"
)

// Options configures one run of the supervisor, the parent-process
// equivalent of the flags parsed in cmd/keepalived/main.go.
type Options struct {
	// SessionPath is the session/child binary to exec.
	SessionPath string
	// ShutdownPath is the binary exec'd on timer expiry.
	ShutdownPath string
	// Pretend withholds the shutdown exec and prints a marker instead (the
	// `-p` flag).
	Pretend bool
	// SessionUser is the account name the child drops to, overridable for
	// tests; production callers leave this at the privsep default.
	SessionUser string
	// Debug forwards the `-d`/verbose flag to the child, so it logs one
	// Debug-level line per unauthorized datagram instead of staying silent.
	Debug bool
}

// Supervisor owns the running child process and the IPC channel to it.
type Supervisor struct {
	opts Options
	log  zerolog.Logger

	cmd *exec.Cmd
	ch  *ipc.Channel

	timeoutFlag bool
}

// PretendMarker is printed to stdout in pretend mode in place of the real
// shutdown exec.
const PretendMarker = "keepalived: would exec shutdown now"

// Run executes the full parent lifecycle for cfg: socketpair, fork+exec,
// config push, privilege drop, event dispatch, and teardown. It returns the
// process exit code: 0 clean, 1 on init/dispatch failure. CLI-usage errors
// (exit 2) are the caller's responsibility before Run is invoked.
func Run(ctx context.Context, cfg *config.Config, opts Options, log zerolog.Logger) int {
	s := &Supervisor{opts: opts, log: log}

	if err := s.start(cfg); err != nil {
		log.Error().Err(err).Str("kind", taxonomyOf(err)).Msg("startup failed")
		return 1
	}

	runErr := s.dispatch(ctx)
	code := s.teardown(runErr)
	return code
}

// start performs the startup sequence: socketpair, fork+exec with privilege
// drop, and pushing the configuration in the fixed order below.
func (s *Supervisor) start(cfg *config.Config) error {
	// Step 3 (partial): SIGPIPE must be ignored before anything can write to
	// a half-closed socketpair end (original_source/keepalived.c:
	// keepalived_init).
	signal.Ignore(syscall.SIGPIPE)

	parentFd, childFd, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return keepaliveerr.Wrap(keepaliveerr.InitError, fmt.Errorf("socketpair: %w", err))
	}

	childFile := os.NewFile(uintptr(childFd), "keepalived-child-ipc")
	defer childFile.Close()

	sessionPath := s.opts.SessionPath
	cmd := exec.Command(sessionPath)
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout
	if s.opts.Debug {
		cmd.Env = append(os.Environ(), privsep.DebugEnv+"=1")
	}

	// original_source/keepalived.c's fork child drops privileges before the
	// dup2+exec that lands the IPC end on the fixed descriptor. Go cannot
	// safely fork without exec in a multi-threaded runtime, so
	// os/exec.Cmd + ExtraFiles is the substitute:
	// the privilege drop instead runs as SysProcAttr.Credential, applied by
	// the kernel between fork and exec in the child, which preserves the
	// same "drop before the new program's first instruction" ordering
	// without this process ever forking itself.
	sessionUser := s.opts.SessionUser
	if sessionUser == "" {
		sessionUser = privsep.UserSession
	}
	if err := applyChildCredential(cmd, sessionUser); err != nil {
		unix.Close(parentFd)
		return keepaliveerr.Wrap(keepaliveerr.InitError, fmt.Errorf("resolve session identity: %w", err))
	}

	if err := cmd.Start(); err != nil {
		unix.Close(parentFd)
		return keepaliveerr.Wrap(keepaliveerr.InitError, fmt.Errorf("exec %s: %w", sessionPath, err))
	}
	s.cmd = cmd

	parentFile := os.NewFile(uintptr(parentFd), "keepalived-parent-ipc")
	s.ch = ipc.NewChannel(parentFile)

	if err := s.pushConfig(cfg); err != nil {
		return keepaliveerr.Wrap(keepaliveerr.IpcError, fmt.Errorf("push config: %w", err))
	}

	if err := s.dropOwnPrivileges(); err != nil {
		return keepaliveerr.Wrap(keepaliveerr.InitError, fmt.Errorf("drop privileges: %w", err))
	}

	return nil
}

// taxonomyOf returns the taxonomy class name tagging err, or "InitError"
// if err wasn't produced through keepaliveerr.Wrap.
func taxonomyOf(err error) string {
	var e *keepaliveerr.Error
	if keepaliveerr.As(err, &e) {
		return string(e.Class)
	}
	return string(keepaliveerr.InitError)
}

// applyChildCredential resolves the session account (defaults to
// privsep.UserSession) and attaches it to cmd as a process credential, so the
// kernel drops privileges between fork and exec inside the about-to-run
// child — the os/exec substitute for the C original's explicit
// setresuid/setresgid call in the forked child before its dup2+exec.
func applyChildCredential(cmd *exec.Cmd, userName string) error {
	id, err := privsep.LookupUser(userName)
	if err != nil {
		return err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid: uint32(id.UID),
			Gid: uint32(id.GID),
		},
	}
	return nil
}

// pushConfig enqueues the startup configuration in the exact order the
// protocol requires: one SESSION_LISTENER per listener, one
// SESSION_LISTENER_DONE, one SESSION_CLIENT per client, one SESSION_TIMEOUT.
func (s *Supervisor) pushConfig(cfg *config.Config) error {
	for _, l := range cfg.Listeners {
		if err := s.ch.Enqueue(ipcproto.MsgSessionListener, ipcproto.EncodeEndpoint(l)); err != nil {
			return err
		}
	}
	if err := s.ch.Enqueue(ipcproto.MsgSessionListenerDone, nil); err != nil {
		return err
	}
	for _, c := range cfg.Clients {
		if err := s.ch.Enqueue(ipcproto.MsgSessionClient, ipcproto.EncodeEndpoint(c)); err != nil {
			return err
		}
	}
	if err := s.ch.Enqueue(ipcproto.MsgSessionTimeout, ipcproto.EncodeTimeout(int64(cfg.TimeoutSeconds))); err != nil {
		return err
	}
	return nil
}

// dropOwnPrivileges reduces the parent's own identity and capabilities to
// what's needed to wait on the child, read the IPC, and exec the shutdown
// path. It first drops uid/gid to UserParent/GroupShutdown, the Go
// equivalent of keepalived_init's getpwnam(KEEPALIVED_USER_PRIV)/
// getgrnam(GRP_SHUTDOWN)/setgroups/setresgid/setresuid sequence, then
// pledges down, whitelisting the shutdown path for exec unless in pretend
// mode.
func (s *Supervisor) dropOwnPrivileges() error {
	id, err := privsep.LookupUser(privsep.UserParent)
	if err != nil {
		return fmt.Errorf("resolve parent identity: %w", err)
	}
	gid, err := privsep.LookupGroup(privsep.GroupShutdown)
	if err != nil {
		return fmt.Errorf("resolve shutdown group: %w", err)
	}
	if err := privsep.DropPrivileges(id, gid); err != nil {
		return fmt.Errorf("drop parent privileges: %w", err)
	}

	cs := privsep.NewCapset(s.opts.Pretend)
	return cs.RestrictParentPostInit(s.opts.ShutdownPath)
}

// dispatch is the parent's event loop: IPC records in (accept only SESSION_TIMER),
// ctx cancellation standing in for SIGINT/SIGTERM, and child exit observed
// through the IPC channel closing (the child closes its end, or dies, either
// way Records()/Done() unblocks).
func (s *Supervisor) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case rec, ok := <-s.ch.Records():
			if !ok {
				if err := s.ch.Err(); err != nil {
					return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
				}
				return nil
			}
			if rec.Type != ipcproto.MsgSessionTimer {
				err := fmt.Errorf("unexpected message %v from child", rec.Type)
				return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
			}
			s.timeoutFlag = true
			s.log.Warn().Str("kind", "child-timer").Msg("child reported inactivity timeout")
			return nil
		}
	}
}

// teardown runs the teardown sequence unconditionally: signal the child,
// reap it, then act on TimeoutFlag.
func (s *Supervisor) teardown(runErr error) int {
	code := 0
	if runErr != nil {
		code = 1
	}

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGINT)
	}
	if s.ch != nil {
		s.ch.Close()
	}
	if s.cmd != nil {
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				s.log.Warn().Str("kind", string(logging.ChildExitError)).Int("code", exitErr.ExitCode()).Msg("child exited nonzero")
			} else {
				s.log.Warn().Err(err).Str("kind", string(logging.ChildExitError)).Msg("failed to reap child")
			}
		}
	}

	if !s.timeoutFlag {
		return code
	}

	if s.opts.Pretend {
		fmt.Println(PretendMarker)
		return 0
	}

	argv := []string{s.opts.ShutdownPath, "-p", "now"}
	if err := unix.Exec(s.opts.ShutdownPath, argv, os.Environ()); err != nil {
		s.log.Error().Err(err).Str("kind", string(logging.ShutdownExecError)).Msg("failed to exec shutdown binary")
		return 1
	}
	// unix.Exec only returns on failure.
	return 1
}
