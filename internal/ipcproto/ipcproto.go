// Package ipcproto defines the wire format shared by the parent and child
// processes: the message type tags and the fixed-width payload encodings
// carried by each tag. It has no notion of sockets or goroutines —
// it is the pure encode/decode layer that internal/ipc builds a channel on
// top of, the same way SagerNet-smux's rawHeader is a plain byte-packing
// helper independent of its recvLoop/sendLoop goroutines.
package ipcproto

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/hgojf/keepalive/internal/endpoint"
)

// MsgType is the small enumeration of record tags carried over the IPC
// channel. Renamed 1:1 from original_source/session.h's IMSG_SESSION_*
// enumeration.
type MsgType uint8

const (
	// MsgSessionTimer is sent child -> parent: the inactivity timer fired.
	MsgSessionTimer MsgType = iota
	// MsgSessionClient is sent parent -> child: append a client whitelist entry.
	MsgSessionClient
	// MsgSessionListener is sent parent -> child: bind and register a listener.
	MsgSessionListener
	// MsgSessionListenerDone is sent parent -> child: CONFIG -> LISTEN barrier.
	MsgSessionListenerDone
	// MsgSessionTimeout is sent parent -> child: arm the inactivity timer.
	MsgSessionTimeout
)

func (t MsgType) String() string {
	switch t {
	case MsgSessionTimer:
		return "SESSION_TIMER"
	case MsgSessionClient:
		return "SESSION_CLIENT"
	case MsgSessionListener:
		return "SESSION_LISTENER"
	case MsgSessionListenerDone:
		return "SESSION_LISTENER_DONE"
	case MsgSessionTimeout:
		return "SESSION_TIMEOUT"
	default:
		return "SESSION_UNKNOWN"
	}
}

// HeaderSize is the length-prefix header: one type byte, four little-endian
// payload-length bytes. The byte order is fixed little-endian on every host;
// parent and child always run on the same host.
const HeaderSize = 5

// MaxPayload is a sanity bound on a single record's payload length, well
// above the largest legitimate payload (an encoded Endpoint, endpointSize
// bytes). The exact length each tag carries is enforced separately by
// ExpectedPayloadLen.
const MaxPayload = 1 << 16

var (
	// ErrMalformed is returned when a payload's length doesn't match what its
	// tag requires (an IpcError: malformed payload, wrong length).
	ErrMalformed = errors.New("ipcproto: malformed payload")
	// ErrUnknownType is returned for a tag outside the enumeration above.
	ErrUnknownType = errors.New("ipcproto: unknown message type")
)

// EncodeHeader writes the 5-byte header for a record of the given type and
// payload length into buf, which must be at least HeaderSize bytes.
func EncodeHeader(buf []byte, typ MsgType, length int) {
	buf[0] = byte(typ)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(length))
}

// DecodeHeader reads the 5-byte header from buf.
func DecodeHeader(buf []byte) (typ MsgType, length int) {
	return MsgType(buf[0]), int(binary.LittleEndian.Uint32(buf[1:5]))
}

const endpointSize = 1 + 16 + 2 // family + address bits + port

// EncodeEndpoint packs an endpoint.Endpoint into its fixed-width wire form:
// one family byte, sixteen address bytes (v4 addresses are zero-padded), two
// port bytes. This mirrors struct sockaddr_storage being copied verbatim in
// the C original, just shrunk to the bits the core actually examines.
func EncodeEndpoint(e endpoint.Endpoint) []byte {
	buf := make([]byte, endpointSize)
	buf[0] = byte(e.Family)
	switch e.Family {
	case endpoint.FamilyInet:
		if e.Addr.Is4() {
			b := e.Addr.As4()
			copy(buf[1:5], b[:])
		}
	case endpoint.FamilyInet6:
		if e.Addr.Is6() {
			b := e.Addr.As16()
			copy(buf[1:17], b[:])
		}
	}
	binary.LittleEndian.PutUint16(buf[17:19], e.Port)
	return buf
}

// DecodeEndpoint is the inverse of EncodeEndpoint.
func DecodeEndpoint(buf []byte) (endpoint.Endpoint, error) {
	if len(buf) != endpointSize {
		return endpoint.Endpoint{}, ErrMalformed
	}
	fam := endpoint.Family(buf[0])
	port := binary.LittleEndian.Uint16(buf[17:19])

	switch fam {
	case endpoint.FamilyInet:
		a := netip.AddrFrom4([4]byte(buf[1:5]))
		return endpoint.Endpoint{Family: fam, Addr: a, Port: port}, nil
	case endpoint.FamilyInet6:
		a := netip.AddrFrom16([16]byte(buf[1:17]))
		return endpoint.Endpoint{Family: fam, Addr: a, Port: port}, nil
	case endpoint.FamilyUnknown:
		return endpoint.Endpoint{Family: endpoint.FamilyUnknown}, nil
	default:
		return endpoint.Endpoint{}, ErrUnknownType
	}
}

const timeoutSize = 8

// EncodeTimeout packs a timeout in seconds as an 8-byte little-endian value.
func EncodeTimeout(seconds int64) []byte {
	buf := make([]byte, timeoutSize)
	binary.LittleEndian.PutUint64(buf, uint64(seconds))
	return buf
}

// DecodeTimeout is the inverse of EncodeTimeout.
func DecodeTimeout(buf []byte) (int64, error) {
	if len(buf) != timeoutSize {
		return 0, ErrMalformed
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// ExpectedPayloadLen returns the exact payload length a conformant record of
// typ must carry (every tag of this protocol has a fixed length), or
// ErrUnknownType for a tag outside the enumeration.
func ExpectedPayloadLen(typ MsgType) (int, error) {
	switch typ {
	case MsgSessionTimer, MsgSessionListenerDone:
		return 0, nil
	case MsgSessionClient, MsgSessionListener:
		return endpointSize, nil
	case MsgSessionTimeout:
		return timeoutSize, nil
	default:
		return 0, ErrUnknownType
	}
}
