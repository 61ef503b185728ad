// Package ipc implements the bidirectional, length-prefixed, typed-record
// channel that connects the parent and child processes. It is split
// into two layers: Framer is a pure, goroutine-free buffering layer usable
// against any io.ReadWriter (including an in-memory test double), and
// Channel (see channel.go) is the goroutine-driven wrapper the dispatch
// loops actually use, grounded in SagerNet-smux's recvLoop/sendLoop pair.
package ipc

import (
	"errors"
	"io"

	"github.com/hgojf/keepalive/internal/ipcproto"
)

// Record is one fully-deframed message: a type tag and its raw payload.
type Record struct {
	Type    ipcproto.MsgType
	Payload []byte
}

var (
	// ErrWouldBlock is returned by Flush/ReadAvailable when the underlying
	// transport signals it is not currently ready, mirroring smux's
	// ErrWouldBlock sentinel for the same concept.
	ErrWouldBlock = errors.New("ipc: would block")
	// ErrPayloadTooLarge is returned by Enqueue for a payload over MaxPayload.
	ErrPayloadTooLarge = errors.New("ipc: payload too large")
)

const readChunk = 4096

// Framer buffers outgoing records and incoming bytes for one direction pair
// of a Channel. It never performs I/O itself beyond the Write/Read calls the
// caller drives through Flush/ReadAvailable, so it has no goroutines and no
// blocking behaviour of its own, which keeps it independently unit-testable.
type Framer struct {
	rw      io.ReadWriter
	sendBuf []byte
	recvBuf []byte
}

// NewFramer wraps rw (a real socket, or an in-memory test double) in a Framer.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw}
}

// Enqueue appends one record to the send buffer. It never performs I/O and
// so never blocks; Go's allocator does not expose out-of-memory as a
// recoverable error the way C's malloc does, so the one error this returns
// is a payload over MaxPayload, which is the closest analogue available to
// this layer (a resource-exhaustion-shaped refusal to queue the record).
func (f *Framer) Enqueue(typ ipcproto.MsgType, payload []byte) error {
	if len(payload) > ipcproto.MaxPayload {
		return ErrPayloadTooLarge
	}
	hdr := make([]byte, ipcproto.HeaderSize)
	ipcproto.EncodeHeader(hdr, typ, len(payload))
	f.sendBuf = append(f.sendBuf, hdr...)
	f.sendBuf = append(f.sendBuf, payload...)
	return nil
}

// Pending reports whether there are unflushed bytes queued to write.
func (f *Framer) Pending() bool {
	return len(f.sendBuf) > 0
}

// Flush drives as many pending bytes out as the transport currently accepts.
// It returns nil once the send buffer is empty, ErrWouldBlock if the
// transport isn't ready for more (the caller should re-arm write interest
// and retry later), or the underlying write error otherwise.
func (f *Framer) Flush() error {
	for len(f.sendBuf) > 0 {
		n, err := f.rw.Write(f.sendBuf)
		if n > 0 {
			f.sendBuf = f.sendBuf[n:]
		}
		if err != nil {
			if isWouldBlock(err) {
				return ErrWouldBlock
			}
			return err
		}
		if n == 0 {
			return ErrWouldBlock
		}
	}
	return nil
}

// ReadAvailable drains whatever the transport currently has into the receive
// buffer. It returns the number of bytes read; io.EOF signals an orderly peer
// close (0 bytes with io.EOF signals an orderly peer close), ErrWouldBlock signals the
// transport has nothing ready right now, and any other error is fatal.
func (f *Framer) ReadAvailable() (int, error) {
	buf := make([]byte, readChunk)
	n, err := f.rw.Read(buf)
	if n > 0 {
		f.recvBuf = append(f.recvBuf, buf[:n]...)
	}
	if err != nil {
		if isWouldBlock(err) {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

// HasIncompleteRecord reports whether the receive buffer holds a nonzero
// number of undeframed bytes — used by the peer-close failure policy in
// a peer close with an incomplete trailing record is fatal, an
// orderly close with an empty receive buffer is not.
func (f *Framer) HasIncompleteRecord() bool {
	return len(f.recvBuf) > 0
}

// GetNext attempts to deframe one complete record from the receive buffer.
// It returns (nil, nil) if the buffer doesn't yet hold a full record, a
// non-nil Record on success, or an error for a framing violation (unknown
// type, or a payload length that doesn't match what the tag requires).
func (f *Framer) GetNext() (*Record, error) {
	if len(f.recvBuf) < ipcproto.HeaderSize {
		return nil, nil
	}
	typ, length := ipcproto.DecodeHeader(f.recvBuf)
	if length < 0 || length > ipcproto.MaxPayload {
		return nil, ipcproto.ErrMalformed
	}
	want, err := ipcproto.ExpectedPayloadLen(typ)
	if err != nil {
		return nil, err
	}
	if length != want {
		return nil, ipcproto.ErrMalformed
	}
	if len(f.recvBuf) < ipcproto.HeaderSize+length {
		return nil, nil
	}
	payload := append([]byte(nil), f.recvBuf[ipcproto.HeaderSize:ipcproto.HeaderSize+length]...)
	f.recvBuf = f.recvBuf[ipcproto.HeaderSize+length:]
	return &Record{Type: typ, Payload: payload}, nil
}

// wouldBlocker is satisfied by net.Error and by test doubles that want to
// simulate a non-blocking transport without a real deadline.
type wouldBlocker interface {
	Temporary() bool
}

func isWouldBlock(err error) bool {
	if errors.Is(err, ErrWouldBlock) {
		return true
	}
	var wb wouldBlocker
	if errors.As(err, &wb) {
		return wb.Temporary()
	}
	return false
}
