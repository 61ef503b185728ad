package ipc

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hgojf/keepalive/internal/ipcproto"
)

func TestChannelRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	ca := NewChannel(a)
	cb := NewChannel(b)
	defer ca.Close()
	defer cb.Close()

	if err := ca.Enqueue(ipcproto.MsgSessionTimeout, ipcproto.EncodeTimeout(42)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case rec := <-cb.Records():
		if rec.Type != ipcproto.MsgSessionTimeout {
			t.Fatalf("got type %v, want %v", rec.Type, ipcproto.MsgSessionTimeout)
		}
		seconds, err := ipcproto.DecodeTimeout(rec.Payload)
		if err != nil {
			t.Fatalf("DecodeTimeout: %v", err)
		}
		if seconds != 42 {
			t.Fatalf("got %d, want 42", seconds)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestChannelOrderlyClose(t *testing.T) {
	a, b := net.Pipe()
	ca := NewChannel(a)
	cb := NewChannel(b)
	defer cb.Close()

	if err := ca.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-cb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer close")
	}
	if err := cb.Err(); err != nil {
		t.Fatalf("expected orderly close (nil Err), got %v", err)
	}
}

func TestChannelUnknownTypeIsFatal(t *testing.T) {
	a, b := net.Pipe()
	cb := NewChannel(b)
	defer a.Close()
	defer cb.Close()

	hdr := make([]byte, ipcproto.HeaderSize)
	ipcproto.EncodeHeader(hdr, ipcproto.MsgType(250), 0)
	go a.Write(hdr)

	select {
	case <-cb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for protocol failure teardown")
	}
	if !errors.Is(cb.Err(), ipcproto.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", cb.Err())
	}
}
