// Command keepalived-session is the unprivileged child/session process.
// It takes no flags: everything arrives over the IPC file
// descriptor the parent arranges to be inherited at a fixed number.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hgojf/keepalive/internal/child"
	"github.com/hgojf/keepalive/internal/ipc"
	"github.com/hgojf/keepalive/internal/logging"
	"github.com/hgojf/keepalive/internal/privsep"
)

func main() {
	os.Exit(run())
}

func run() int {
	debug := os.Getenv(privsep.DebugEnv) != ""
	log := logging.New("session", debug)

	ipcFile := os.NewFile(uintptr(privsep.ChildIPCFd), "keepalived-session-ipc")
	if ipcFile == nil {
		log.Error().Str("kind", string(logging.InitError)).Msg("missing inherited ipc descriptor")
		return 1
	}

	ch := ipc.NewChannel(ipcFile)
	defer ch.Close()

	sess := child.NewSession(ch, log, debug)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sess.Run(ctx); err != nil {
		log.Error().Err(err).Str("kind", string(logging.IpcError)).Msg("session exited")
		return 1
	}
	return 0
}
