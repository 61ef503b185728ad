// Package child implements the unprivileged session process's event loop and
// state machine (original_source/session.c). It owns the UDP
// listeners, the client whitelist, and the one-shot inactivity timer, and
// talks to the parent exclusively over an internal/ipc.Channel.
package child

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/hgojf/keepalive/internal/endpoint"
	"github.com/hgojf/keepalive/internal/ipc"
	"github.com/hgojf/keepalive/internal/ipcproto"
	"github.com/hgojf/keepalive/internal/keepaliveerr"
	"github.com/hgojf/keepalive/internal/privsep"
)

// State is the child's CONFIG/LISTEN state.
type State int

const (
	StateConfig State = iota
	StateListen
)

func (s State) String() string {
	if s == StateListen {
		return "LISTEN"
	}
	return "CONFIG"
}

// ErrProtocolViolation is returned from Run when the parent sends a message
// the child's current state forbids: a listener or
// client registration arriving after LISTENER_DONE.
var ErrProtocolViolation = errors.New("child: protocol violation")

// listenerBinder is the subset of net.ListenConfig.ListenPacket the session
// depends on, so tests can substitute an in-memory packet source instead of
// binding real UDP sockets.
type listenerBinder interface {
	ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error)
}

type defaultBinder struct{ lc net.ListenConfig }

func (d defaultBinder) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	return d.lc.ListenPacket(ctx, network, address)
}

// Session is the child/session process's runtime state: the registered
// listeners, the client whitelist, the timer, and the current ChildState.
type Session struct {
	ch      *ipc.Channel
	log     zerolog.Logger
	binder  listenerBinder
	caps    privsep.Capset
	verbose bool

	state     State
	clients   []endpoint.Endpoint
	listeners []net.PacketConn

	timer        *time.Timer
	timerC       <-chan time.Time
	timerPending bool
	timeout      time.Duration
	timerFired   bool

	datagrams chan datagramEvent
}

type datagramEvent struct {
	src endpoint.Endpoint
}

// NewSession constructs a Session around an already-established IPC channel
// to the parent (in production, the socketpair end inherited on ChildIPCFd).
// verbose gates the one Debug-level line logged per unauthorized datagram.
func NewSession(ch *ipc.Channel, log zerolog.Logger, verbose bool) *Session {
	return &Session{
		ch:        ch,
		log:       log,
		binder:    defaultBinder{},
		caps:      privsep.NewCapset(false),
		verbose:   verbose,
		state:     StateConfig,
		datagrams: make(chan datagramEvent, 64),
	}
}

// Run drives the child's event loop to completion. ctx cancellation stands
// in for delivery of SIGINT/SIGTERM: on cancellation the loop breaks and the
// child tears down cleanly. Run returns nil on a clean exit and a non-nil
// error for any fatal condition (IpcError, NetworkError, TimerError, or an
// explicit protocol violation).
func (s *Session) Run(ctx context.Context) error {
	defer s.closeListeners()

	if err := s.caps.RestrictNetworkStdio(); err != nil {
		return keepaliveerr.Wrap(keepaliveerr.InitError, fmt.Errorf("restrict capabilities: %w", err))
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("signalled, shutting down cleanly")
			return nil

		case rec, ok := <-s.ch.Records():
			if !ok {
				if err := s.ch.Err(); err != nil {
					return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
				}
				s.log.Info().Msg("parent closed ipc, exiting")
				return nil
			}
			if err := s.dispatch(rec); err != nil {
				return err
			}

		case ev := <-s.datagrams:
			s.handleDatagram(ev.src)

		case <-s.timerChan():
			if err := s.fireTimer(); err != nil {
				return err
			}
		}
	}
}

// timerChan returns the active timer's channel, or nil (a select case that
// never becomes ready) if no timer is currently armed.
func (s *Session) timerChan() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timerC
}

func (s *Session) dispatch(rec ipc.Record) error {
	switch rec.Type {
	case ipcproto.MsgSessionListener:
		return s.handleListener(rec.Payload)
	case ipcproto.MsgSessionListenerDone:
		return s.handleListenerDone()
	case ipcproto.MsgSessionClient:
		return s.handleClient(rec.Payload)
	case ipcproto.MsgSessionTimeout:
		return s.handleTimeout(rec.Payload)
	default:
		err := fmt.Errorf("%w: unexpected message %v from parent", ErrProtocolViolation, rec.Type)
		return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
	}
}

// handleListener binds a UDP listener and registers it. Listeners are bound
// in CONFIG but not polled until LISTENER_DONE; registering one after the
// CONFIG->LISTEN transition is a protocol violation.
func (s *Session) handleListener(payload []byte) error {
	if s.state != StateConfig {
		err := fmt.Errorf("%w: SESSION_LISTENER after LISTENER_DONE", ErrProtocolViolation)
		return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
	}
	ep, err := ipcproto.DecodeEndpoint(payload)
	if err != nil {
		return keepaliveerr.Wrap(keepaliveerr.IpcError, fmt.Errorf("decode listener endpoint: %w", err))
	}
	network := "udp4"
	if ep.Family == endpoint.FamilyInet6 {
		network = "udp6"
	}
	pc, err := s.binder.ListenPacket(context.Background(), network, ep.AddrPort().String())
	if err != nil {
		return keepaliveerr.Wrap(keepaliveerr.NetworkError, fmt.Errorf("listen %s: %w", ep.AddrPort(), err))
	}
	s.listeners = append(s.listeners, pc)
	s.log.Debug().Str("listener", ep.AddrPort().String()).Msg("bound listener")
	return nil
}

// handleListenerDone performs the CONFIG->LISTEN barrier: it arms polling on
// every bound listener at once: no listener is polling before this point,
// and all of them are polling immediately after it.
func (s *Session) handleListenerDone() error {
	if s.state != StateConfig {
		err := fmt.Errorf("%w: duplicate SESSION_LISTENER_DONE", ErrProtocolViolation)
		return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
	}
	s.state = StateListen
	for _, pc := range s.listeners {
		go s.pollListener(pc)
	}
	if err := s.caps.RestrictStdioOnly(); err != nil {
		return keepaliveerr.Wrap(keepaliveerr.InitError, fmt.Errorf("restrict capabilities: %w", err))
	}
	s.log.Debug().Int("listeners", len(s.listeners)).Msg("entering LISTEN state")
	return nil
}

// pollListener receives datagrams from one listener for the life of the
// process, forwarding each sender's address onto the dispatch loop's
// datagrams channel. It is the Go substitute for a libevent EV_READ callback
// per listener fd; exactly one goroutine owns each socket's Read calls, so
// there is no cross-goroutine mutation of listener state.
func (s *Session) pollListener(pc net.PacketConn) {
	buf := make([]byte, 1500)
	for {
		_, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		// original_source/session.c's listener callback asserts
		// session->state >= STATE_LISTEN before touching a datagram; this
		// goroutine only ever runs after handleListenerDone sets StateListen,
		// but the check is carried as the same defensive panic.
		if s.state != StateListen {
			panic("child: datagram read before LISTEN state")
		}
		ep, ok := endpointFromAddr(addr)
		if !ok {
			continue
		}
		select {
		case s.datagrams <- datagramEvent{src: ep}:
		default:
			// Backpressure on the dispatch loop is acceptable here: liveness
			// is a stream, dropping one datagram under load is harmless.
		}
	}
}

func endpointFromAddr(addr net.Addr) (endpoint.Endpoint, bool) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return endpoint.Endpoint{}, false
	}
	ap := udpAddr.AddrPort()
	fam := endpoint.FamilyInet
	if ap.Addr().Is6() && !ap.Addr().Is4In6() {
		fam = endpoint.FamilyInet6
	}
	return endpoint.Endpoint{Family: fam, Addr: ap.Addr(), Port: ap.Port()}, true
}

// handleClient appends one entry to the whitelist. Rejected once the child
// has entered LISTEN, the same as a late listener registration.
func (s *Session) handleClient(payload []byte) error {
	if s.state != StateConfig {
		err := fmt.Errorf("%w: SESSION_CLIENT after LISTENER_DONE", ErrProtocolViolation)
		return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
	}
	ep, err := ipcproto.DecodeEndpoint(payload)
	if err != nil {
		return keepaliveerr.Wrap(keepaliveerr.IpcError, fmt.Errorf("decode client endpoint: %w", err))
	}
	s.clients = append(s.clients, ep)
	return nil
}

// handleTimeout arms the inactivity timer for the first and only time from
// outside the datagram path: it is armed initially when the timeout
// message is received.
func (s *Session) handleTimeout(payload []byte) error {
	seconds, err := ipcproto.DecodeTimeout(payload)
	if err != nil {
		return keepaliveerr.Wrap(keepaliveerr.IpcError, fmt.Errorf("decode timeout: %w", err))
	}
	if seconds <= 0 {
		err := fmt.Errorf("%w: non-positive timeout", ErrProtocolViolation)
		return keepaliveerr.Wrap(keepaliveerr.IpcError, err)
	}
	s.timeout = time.Duration(seconds) * time.Second
	s.armTimer()
	return nil
}

func (s *Session) armTimer() {
	s.timer = time.NewTimer(s.timeout)
	s.timerC = s.timer.C
	s.timerPending = true
}

// handleDatagram implements the core correctness property of the timer
// discipline: a datagram resets the timer iff its source matches the
// whitelist by address bits only (internal/endpoint.Equal) AND a timer is
// currently pending. Unmatched or late (timer already fired) datagrams are
// silently discarded.
func (s *Session) handleDatagram(src endpoint.Endpoint) {
	if !s.timerPending {
		return
	}
	authorized := false
	for _, c := range s.clients {
		if endpoint.Equal(c, src) {
			authorized = true
			break
		}
	}
	if !authorized {
		if s.verbose {
			s.log.Debug().Str("src", src.AddrPort().String()).Msg("unauthorized datagram")
		}
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timerC:
		default:
		}
	}
	s.timer.Reset(s.timeout)
}

// fireTimer runs exactly once per child lifetime: it enqueues SESSION_TIMER
// and stops treating further timer channel sends as live (timerPending
// becomes false, so subsequent datagrams are discarded per the "no pending
// timer -> discard" rule).
func (s *Session) fireTimer() error {
	if s.timerFired {
		return nil
	}
	s.timerFired = true
	s.timerPending = false
	if err := s.ch.Enqueue(ipcproto.MsgSessionTimer, nil); err != nil {
		return keepaliveerr.Wrap(keepaliveerr.IpcError, fmt.Errorf("enqueue SESSION_TIMER: %w", err))
	}
	s.log.Warn().Msg("inactivity timer expired")
	return nil
}

func (s *Session) closeListeners() {
	for _, pc := range s.listeners {
		pc.Close()
	}
}
