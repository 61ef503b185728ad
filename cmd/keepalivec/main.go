// Command keepalivec periodically sends 1-byte UDP datagrams to one or more
// resolved addresses of a single host:port, to keep a keepalived daemon's
// inactivity timer from firing.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/hgojf/keepalive/internal/logging"
	"github.com/hgojf/keepalive/internal/privsep"
)

type options struct {
	Timeout uint `short:"t" description:"seconds between passes (default: daemon timeout - 5)"`

	Positional struct {
		Host string `positional-arg-name:"host"`
		Port string `positional-arg-name:"port"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New("client", false)

	var opts options
	opts.Timeout = uint(privsep.DefaultTimeoutSeconds - 5)

	parser := flags.NewParser(&opts, flags.Default&^flags.PrintErrors)
	parser.Usage = "[-t timeout] host port"
	if _, err := parser.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	addrs, err := net.LookupHost(opts.Positional.Host)
	if err != nil {
		log.Error().Err(err).Msg("resolve host")
		return 1
	}

	var conns []net.Conn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for _, a := range addrs {
		c, err := net.Dial("udp", net.JoinHostPort(a, opts.Positional.Port))
		if err != nil {
			log.Error().Err(err).Str("addr", a).Msg("connect")
			return 1
		}
		conns = append(conns, c)
	}

	payload := []byte{0}
	interval := time.Duration(opts.Timeout) * time.Second
	for {
		for _, c := range conns {
			if _, err := c.Write(payload); err != nil {
				log.Error().Err(err).Msg("send")
				return 1
			}
		}
		time.Sleep(interval)
	}
}
