// Command keepalived is the privileged parent/supervisor process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/hgojf/keepalive/internal/config"
	"github.com/hgojf/keepalive/internal/logging"
	"github.com/hgojf/keepalive/internal/parentd"
	"github.com/hgojf/keepalive/internal/privsep"
)

type options struct {
	Debug      bool   `short:"d" description:"do not detach; stay in foreground"`
	ConfigTest bool   `short:"n" description:"load config, report OK, and exit"`
	Pretend    bool   `short:"p" description:"do everything except exec the shutdown binary"`
	ConfigPath string `short:"f" value-name:"file" description:"configuration path"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	opts.ConfigPath = privsep.DefaultConfigPath

	parser := flags.NewParser(&opts, flags.Default&^flags.PrintErrors)
	parser.Usage = "[-dnp] [-f file]"
	if _, err := parser.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := logging.New("parent", opts.Debug)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Error().Err(err).Str("kind", string(logging.ConfigError)).Msg("configuration failed")
		return 1
	}

	if opts.ConfigTest {
		fmt.Println("configuration OK")
		return 0
	}

	if !opts.Debug {
		// daemon(3) has no portable Go equivalent; detaching is handled by
		// the process supervisor/init system in this rendition, matching
		// the original's own comment that the daemon() call is best-effort.
		if err := detach(); err != nil {
			log.Warn().Err(err).Str("kind", string(logging.InitError)).Msg("failed to detach")
			return 1
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionOpts := parentd.Options{
		SessionPath:  privsep.DefaultSessionPath,
		ShutdownPath: privsep.DefaultShutdownPath,
		Pretend:      opts.Pretend,
		Debug:        opts.Debug,
	}
	return parentd.Run(ctx, cfg, sessionOpts, log)
}
