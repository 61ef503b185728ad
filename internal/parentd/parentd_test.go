package parentd

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/hgojf/keepalive/internal/config"
	"github.com/hgojf/keepalive/internal/endpoint"
	"github.com/hgojf/keepalive/internal/ipc"
	"github.com/hgojf/keepalive/internal/ipcproto"
)

func TestPushConfigOrder(t *testing.T) {
	a, b := net.Pipe()
	parentCh := ipc.NewChannel(a)
	childCh := ipc.NewChannel(b)
	defer parentCh.Close()
	defer childCh.Close()

	s := &Supervisor{ch: parentCh}
	cfg := &config.Config{
		Listeners:      []endpoint.Endpoint{endpoint.NewEndpoint(mustAddr("0.0.0.0"), 9000)},
		Clients:        []endpoint.Endpoint{endpoint.NewEndpoint(mustAddr("10.0.0.1"), 0)},
		TimeoutSeconds: 3,
	}
	if err := s.pushConfig(cfg); err != nil {
		t.Fatalf("pushConfig: %v", err)
	}

	want := []ipcproto.MsgType{
		ipcproto.MsgSessionListener,
		ipcproto.MsgSessionListenerDone,
		ipcproto.MsgSessionClient,
		ipcproto.MsgSessionTimeout,
	}
	for i, w := range want {
		select {
		case rec := <-childCh.Records():
			if rec.Type != w {
				t.Fatalf("record %d: got %v, want %v", i, rec.Type, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("record %d: timed out waiting for %v", i, w)
		}
	}
}

func mustAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}
