package ipc

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/hgojf/keepalive/internal/ipcproto"
)

// loopback is a trivial io.ReadWriter test double: bytes written become
// bytes read, with no concept of would-block. It stands in for the
// in-memory transport the design notes ask the framing layer to be testable
// against, independent of the real socketpair.
type loopback struct {
	buf bytes.Buffer
}

func (l *loopback) Write(p []byte) (int, error) { return l.buf.Write(p) }
func (l *loopback) Read(p []byte) (int, error)  { return l.buf.Read(p) }

func TestFramerEnqueueFlushGetNext(t *testing.T) {
	lb := &loopback{}
	f := NewFramer(lb)

	ep := ipcproto.EncodeTimeout(300)
	if err := f.Enqueue(ipcproto.MsgSessionTimeout, ep); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !f.Pending() {
		t.Fatalf("expected Pending() after Enqueue")
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if f.Pending() {
		t.Fatalf("expected no Pending() after Flush")
	}

	// Reading happens on a distinct Framer instance wrapping the same
	// underlying bytes, the way the child's Framer is a different instance
	// than the parent's even though they share one socketpair fd in the real
	// channel.
	rf := NewFramer(lb)
	if _, err := rf.ReadAvailable(); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadAvailable: %v", err)
	}
	rec, err := rf.GetNext()
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a complete record")
	}
	if rec.Type != ipcproto.MsgSessionTimeout {
		t.Fatalf("got type %v, want %v", rec.Type, ipcproto.MsgSessionTimeout)
	}
	seconds, err := ipcproto.DecodeTimeout(rec.Payload)
	if err != nil {
		t.Fatalf("DecodeTimeout: %v", err)
	}
	if seconds != 300 {
		t.Fatalf("got %d, want 300", seconds)
	}
}

func TestFramerGetNextIncomplete(t *testing.T) {
	lb := &loopback{}
	f := NewFramer(lb)
	if err := f.Enqueue(ipcproto.MsgSessionTimer, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rf := NewFramer(lb)
	// Only read part of the header.
	partial := make([]byte, 2)
	n, _ := lb.Read(partial)
	rf.recvBuf = append(rf.recvBuf, partial[:n]...)

	rec, err := rf.GetNext()
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected incomplete (nil, nil), got a record")
	}
	if !rf.HasIncompleteRecord() {
		t.Fatalf("expected HasIncompleteRecord true for a partial header")
	}
}

func TestFramerGetNextMalformedLength(t *testing.T) {
	lb := &loopback{}
	// SESSION_TIMEOUT must carry exactly 8 bytes; write a header claiming 3.
	hdr := make([]byte, ipcproto.HeaderSize)
	ipcproto.EncodeHeader(hdr, ipcproto.MsgSessionTimeout, 3)
	lb.buf.Write(hdr)
	lb.buf.Write([]byte{1, 2, 3})

	f := NewFramer(lb)
	if _, err := f.ReadAvailable(); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if _, err := f.GetNext(); !errors.Is(err, ipcproto.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFramerGetNextUnknownType(t *testing.T) {
	lb := &loopback{}
	hdr := make([]byte, ipcproto.HeaderSize)
	ipcproto.EncodeHeader(hdr, ipcproto.MsgType(200), 0)
	lb.buf.Write(hdr)

	f := NewFramer(lb)
	if _, err := f.ReadAvailable(); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if _, err := f.GetNext(); !errors.Is(err, ipcproto.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestFramerEnqueueTooLarge(t *testing.T) {
	f := NewFramer(&loopback{})
	big := make([]byte, ipcproto.MaxPayload+1)
	if err := f.Enqueue(ipcproto.MsgSessionClient, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
