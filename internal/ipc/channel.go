package ipc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sagernet/sing/common/bufio"
	"golang.org/x/sync/errgroup"

	"github.com/hgojf/keepalive/internal/ipcproto"
)

// Channel is the goroutine-driven IPC channel the child and parent dispatch
// loops actually use. It is the idiomatic-Go rendition of the libevent
// EV_READ/EV_WRITE watch-mask toggling in original_source/session.c's
// session_cb/parent_cb: one goroutine blocks reading the transport and
// decodes records with a Framer (see framer.go), one goroutine drains a
// pending-write queue, and the dispatcher consumes decoded Records from a
// channel instead of being invoked as a callback — directly grounded on
// SagerNet-smux's recvLoop/sendLoop pair (session.go), down to the
// vectorised-write fallback for its writer goroutine.
type Channel struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex
	queue   []queuedFrame
	dirty   chan struct{}

	records chan Record

	done     chan struct{}
	closeErr error
	errOnce  sync.Once
}

type queuedFrame struct {
	typ     ipcproto.MsgType
	payload []byte
}

// NewChannel wraps conn (a connected stream, in production the parent/child
// socketpair end) in a Channel and starts its reader and writer goroutines.
func NewChannel(conn io.ReadWriteCloser) *Channel {
	c := &Channel{
		conn:    conn,
		dirty:   make(chan struct{}, 1),
		records: make(chan Record, 16),
		done:    make(chan struct{}),
	}

	// Either loop ending tears the whole Channel down, so the other loop
	// (blocked on done) returns as well.
	var eg errgroup.Group
	eg.Go(func() error {
		err := c.readLoop()
		c.finish(err)
		return err
	})
	eg.Go(func() error {
		err := c.writeLoop()
		c.finish(err)
		return err
	})
	go func() {
		err := eg.Wait()
		c.finish(err)
	}()

	return c
}

// Enqueue appends one record to the send queue. It never blocks —
// the queue is an unbounded (memory-permitting) slice, not a bounded
// channel — and the only failure mode is a payload too large to be a valid
// message of this protocol.
func (c *Channel) Enqueue(typ ipcproto.MsgType, payload []byte) error {
	if len(payload) > ipcproto.MaxPayload {
		return ErrPayloadTooLarge
	}
	c.writeMu.Lock()
	c.queue = append(c.queue, queuedFrame{typ: typ, payload: payload})
	c.writeMu.Unlock()

	select {
	case c.dirty <- struct{}{}:
	default:
	}
	return nil
}

// Records returns the channel of successfully deframed inbound records. It
// is closed when the Channel tears down; callers should check Err after it
// closes to distinguish an orderly peer close from a protocol failure.
func (c *Channel) Records() <-chan Record {
	return c.records
}

// Done is closed once the Channel has torn down, for either reason.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the fatal error that tore the channel down, or nil if it was
// an orderly peer close or an explicit Close.
func (c *Channel) Err() error {
	<-c.done
	return c.closeErr
}

// Close tears the channel down from the owner's side (e.g. the parent
// signalling the child with INT and then discarding the IPC fd).
func (c *Channel) Close() error {
	var err error
	c.errOnce.Do(func() {
		err = c.conn.Close()
		close(c.done)
		close(c.records)
	})
	return err
}

func (c *Channel) finish(err error) {
	c.errOnce.Do(func() {
		c.closeErr = err
		close(c.done)
		close(c.records)
		c.conn.Close()
	})
}

func (c *Channel) readLoop() error {
	fr := NewFramer(c.conn)
	for {
		_, err := fr.ReadAvailable()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if fr.HasIncompleteRecord() {
					// An incomplete receive on peer close is fatal.
					return fmt.Errorf("ipc: peer closed with a partial record pending: %w", io.ErrUnexpectedEOF)
				}
				// An orderly close without pending state is not an
				// error; the caller's Done()/Err() contract reports it as a
				// clean teardown.
				return nil
			}
			if errors.Is(err, ErrWouldBlock) {
				continue
			}
			return err
		}

		for {
			rec, err := fr.GetNext()
			if err != nil {
				return err
			}
			if rec == nil {
				break
			}
			select {
			case c.records <- *rec:
			case <-c.done:
				return nil
			}
		}
	}
}

// writeLoop drains the pending-write queue, using a vectorised write when
// the transport supports it (the common case for a connected unix
// socketpair) to avoid a copy, and falling back to a single combined-buffer
// write otherwise — the exact two paths SagerNet-smux's sendLoop takes
// depending on whether bufio.CreateVectorisedWriter succeeds.
func (c *Channel) writeLoop() error {
	bw, vectorised := bufio.CreateVectorisedWriter(c.conn)

	for {
		select {
		case <-c.dirty:
		case <-c.done:
			return nil
		}

		for {
			c.writeMu.Lock()
			if len(c.queue) == 0 {
				c.writeMu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue = c.queue[1:]
			c.writeMu.Unlock()

			hdr := make([]byte, ipcproto.HeaderSize)
			ipcproto.EncodeHeader(hdr, f.typ, len(f.payload))

			var err error
			if vectorised && len(f.payload) > 0 {
				_, err = bufio.WriteVectorised(bw, [][]byte{hdr, f.payload})
			} else {
				buf := make([]byte, len(hdr)+len(f.payload))
				copy(buf, hdr)
				copy(buf[len(hdr):], f.payload)
				_, err = c.conn.Write(buf)
			}
			if err != nil {
				return err
			}
		}
	}
}
