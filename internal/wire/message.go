package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags an inbound packet by the role it plays in the conversation with
// the renderer. Classify never fails; shape errors surface when the payload
// of a TypeEvent is decoded.
type Type int

const (
	TypeUnknown    Type = iota
	TypeHeartbeat       // bare "2" from the server, answered with "3"
	TypeProbeAck        // "3probe"
	TypeConnectAck      // "40<ns>,"
	TypeReady           // `42<ns>,["ready",...]`
	TypeEvent           // any other event on the namespace: an RPC response
	TypeConnectError    // "44<ns>,..."
	TypeClosed          // engine close or namespace disconnect
	TypeNoop            // "6"
)

var typeNames = [...]string{
	"unknown", "heartbeat", "probe-ack", "connect-ack", "ready", "event", "connect-error", "closed", "noop",
}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ReadyEvent is the event name the renderer pushes once a namespace is joined.
const ReadyEvent = "ready"

// Classify tags p relative to the namespace the client joined.
func Classify(p Packet, namespace string) Type {
	switch p.Kind {
	case KindPing:
		if p.Data == "" {
			return TypeHeartbeat
		}
	case KindPong:
		if p.Data == "probe" {
			return TypeProbeAck
		}
	case KindClose:
		return TypeClosed
	case KindNoop:
		return TypeNoop
	case KindMessage:
		if !sameNamespace(p.Namespace, namespace) {
			return TypeUnknown
		}
		switch p.Message {
		case MessageConnect:
			return TypeConnectAck
		case MessageDisconnect:
			return TypeClosed
		case MessageError:
			return TypeConnectError
		case MessageEvent:
			if name, err := EventName(p); err == nil && name == ReadyEvent {
				return TypeReady
			}
			return TypeEvent
		}
	}
	return TypeUnknown
}

func sameNamespace(a, b string) bool {
	norm := func(s string) string {
		if s == "" {
			return "/"
		}
		return s
	}
	return norm(a) == norm(b)
}

// Sentinel errors for payload decoding.
var (
	ErrNotEvent         = errors.New("wire: packet is not an event")
	ErrWrongNamespace   = errors.New("wire: event on unexpected namespace")
	ErrMalformedPayload = errors.New("wire: malformed event payload")
	ErrMissingField     = errors.New("wire: result is missing a required field")
)

// EventName returns the first element of an event's JSON array.
func EventName(p Packet) (string, error) {
	args, err := eventArgs(p)
	if err != nil {
		return "", err
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", fmt.Errorf("%w: event name is not a string", ErrMalformedPayload)
	}
	return name, nil
}

func eventArgs(p Packet) ([]json.RawMessage, error) {
	if p.Kind != KindMessage || p.Message != MessageEvent {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotEvent, p.Kind, p.Message)
	}
	var args []json.RawMessage
	if err := json.Unmarshal([]byte(p.Data), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty event array", ErrMalformedPayload)
	}
	return args, nil
}
