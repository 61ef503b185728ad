package ipcproto

import (
	"net/netip"
	"testing"

	"github.com/hgojf/keepalive/internal/endpoint"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, MsgSessionListener, 19)
	typ, length := DecodeHeader(buf)
	if typ != MsgSessionListener || length != 19 {
		t.Fatalf("got (%v, %d), want (%v, 19)", typ, length, MsgSessionListener)
	}
}

func TestEndpointRoundTripV4(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")
	e := endpoint.NewEndpoint(addr, 9000)
	out, err := DecodeEndpoint(EncodeEndpoint(e))
	if err != nil {
		t.Fatalf("DecodeEndpoint: %v", err)
	}
	if !endpoint.Equal(e, out) || out.Port != 9000 {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, e)
	}
}

func TestEndpointRoundTripV6(t *testing.T) {
	addr := netip.MustParseAddr("2001:db8::1")
	e := endpoint.NewEndpoint(addr, 53)
	out, err := DecodeEndpoint(EncodeEndpoint(e))
	if err != nil {
		t.Fatalf("DecodeEndpoint: %v", err)
	}
	if !endpoint.Equal(e, out) || out.Port != 53 {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, e)
	}
}

func TestDecodeEndpointMalformedLength(t *testing.T) {
	if _, err := DecodeEndpoint([]byte{1, 2, 3}); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestTimeoutRoundTrip(t *testing.T) {
	out, err := DecodeTimeout(EncodeTimeout(300))
	if err != nil {
		t.Fatalf("DecodeTimeout: %v", err)
	}
	if out != 300 {
		t.Fatalf("got %d, want 300", out)
	}
}

func TestExpectedPayloadLen(t *testing.T) {
	cases := []struct {
		typ  MsgType
		want int
	}{
		{MsgSessionTimer, 0},
		{MsgSessionListenerDone, 0},
		{MsgSessionClient, endpointSize},
		{MsgSessionListener, endpointSize},
		{MsgSessionTimeout, timeoutSize},
	}
	for _, c := range cases {
		got, err := ExpectedPayloadLen(c.typ)
		if err != nil {
			t.Fatalf("ExpectedPayloadLen(%v): %v", c.typ, err)
		}
		if got != c.want {
			t.Fatalf("ExpectedPayloadLen(%v) = %d, want %d", c.typ, got, c.want)
		}
	}
	if _, err := ExpectedPayloadLen(MsgType(255)); err != ErrUnknownType {
		t.Fatalf("expected ErrUnknownType for unknown tag, got %v", err)
	}
}
