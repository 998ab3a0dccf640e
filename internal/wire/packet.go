// Package wire encodes and decodes the Engine.IO v4 / Socket.IO text framing
// spoken by the remote book renderer.
//
// A packet on the wire is a single text frame:
//
//	<kind digit>[<message digit>][<namespace>,][<ack id>]<data>
//
// The message digit, namespace and ack id only exist for message packets
// (kind 4). Binary frames are not supported.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PacketKind is the Engine.IO packet type, encoded as the first digit.
type PacketKind byte

// Engine.IO packet kinds.
const (
	KindOpen PacketKind = iota
	KindClose
	KindPing
	KindPong
	KindMessage
	KindUpgrade
	KindNoop
)

var packetKindNames = [...]string{"open", "close", "ping", "pong", "message", "upgrade", "noop"}

func (k PacketKind) String() string {
	if int(k) < len(packetKindNames) {
		return packetKindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MessageKind is the Socket.IO packet type carried by a message packet,
// encoded as the second digit.
type MessageKind byte

// Socket.IO message kinds.
const (
	MessageConnect MessageKind = iota
	MessageDisconnect
	MessageEvent
	MessageAck
	MessageError
)

var messageKindNames = [...]string{"connect", "disconnect", "event", "ack", "error"}

func (k MessageKind) String() string {
	if int(k) < len(messageKindNames) {
		return messageKindNames[k]
	}
	return "message(" + strconv.Itoa(int(k)) + ")"
}

// Sentinel errors for packet parsing.
var (
	ErrEmptyPacket        = errors.New("wire: empty packet")
	ErrUnknownKind        = errors.New("wire: unknown packet kind")
	ErrUnknownMessageKind = errors.New("wire: unknown message kind")
)

// Packet is one decoded frame.
type Packet struct {
	Kind    PacketKind
	Message MessageKind // only meaningful when Kind == KindMessage

	// Namespace is the Socket.IO namespace ("/books"). Empty means the
	// default namespace, which is never written on the wire.
	Namespace string

	// AckID is the Socket.IO acknowledgement id, or -1 when absent.
	AckID int

	// Data is everything after the header: "probe" for a probe ping,
	// a JSON array for events.
	Data string
}

// Parse decodes a single text frame.
func Parse(raw string) (Packet, error) {
	if raw == "" {
		return Packet{}, ErrEmptyPacket
	}

	kind, ok := digit(raw[0])
	if !ok || PacketKind(kind) > KindNoop {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw[0])
	}

	p := Packet{Kind: PacketKind(kind), AckID: -1}
	if p.Kind != KindMessage {
		p.Data = raw[1:]
		return p, nil
	}

	if len(raw) < 2 {
		return Packet{}, fmt.Errorf("%w: missing message digit in %q", ErrUnknownMessageKind, raw)
	}
	sub, ok := digit(raw[1])
	if !ok || MessageKind(sub) > MessageError {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownMessageKind, raw[1])
	}
	p.Message = MessageKind(sub)

	rest := raw[2:]
	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.Namespace, rest = rest[:i], rest[i+1:]
		} else {
			p.Namespace, rest = rest, ""
		}
	}

	n := 0
	for n < len(rest) {
		if _, ok := digit(rest[n]); !ok {
			break
		}
		n++
	}
	if n > 0 {
		id, err := strconv.Atoi(rest[:n])
		if err == nil {
			p.AckID = id
		}
		rest = rest[n:]
	}

	p.Data = rest
	return p, nil
}

// String encodes the packet back into its wire form.
func (p Packet) String() string {
	var b strings.Builder
	b.WriteByte('0' + byte(p.Kind))
	if p.Kind == KindMessage {
		b.WriteByte('0' + byte(p.Message))
		if p.Namespace != "" && p.Namespace != "/" {
			b.WriteString(p.Namespace)
			b.WriteByte(',')
		}
		if p.AckID >= 0 {
			b.WriteString(strconv.Itoa(p.AckID))
		}
	}
	b.WriteString(p.Data)
	return b.String()
}

func digit(c byte) (int, bool) {
	if c < '0' || c > '9' {
		return 0, false
	}
	return int(c - '0'), true
}

// Frames sent by the client during the upgrade handshake.
var (
	Probe   = Packet{Kind: KindPing, Data: "probe", AckID: -1}
	Upgrade = Packet{Kind: KindUpgrade, AckID: -1}
	Pong    = Packet{Kind: KindPong, AckID: -1}
)

// Connect returns the namespace join packet ("40/books,").
func Connect(namespace string) Packet {
	return Packet{Kind: KindMessage, Message: MessageConnect, Namespace: namespace, AckID: -1}
}

// Event returns an event packet carrying a JSON array payload.
func Event(namespace, data string) Packet {
	return Packet{Kind: KindMessage, Message: MessageEvent, Namespace: namespace, AckID: -1, Data: data}
}
