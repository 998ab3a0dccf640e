package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// defaultDenialMessage is used when the server flags an error without text.
const defaultDenialMessage = "Error fetching page"

// EncodeCall builds an RPC envelope: an event whose payload is
// ["<op>", "<args as a JSON string>"]. The renderer requires the argument
// object to be JSON-encoded twice.
func EncodeCall(namespace, op string, args any) (Packet, error) {
	argJSON, err := json.Marshal(args)
	if err != nil {
		return Packet{}, fmt.Errorf("wire: encoding %s arguments: %w", op, err)
	}
	payload, err := json.Marshal([2]string{op, string(argJSON)})
	if err != nil {
		return Packet{}, fmt.Errorf("wire: encoding %s envelope: %w", op, err)
	}
	return Event(namespace, string(payload)), nil
}

// Result is the decoded object carried by an RPC response.
type Result struct {
	HTML string

	// Denied is set when the server flagged the call with a truthy "error".
	Denied  bool
	Message string
}

// DecodeResult unwraps an RPC response: the event array's second element is
// a JSON string which itself decodes to {"html": ...} or
// {"error": true, "message": ...}.
func DecodeResult(p Packet, namespace string) (Result, error) {
	if p.Kind != KindMessage || p.Message != MessageEvent {
		return Result{}, fmt.Errorf("%w: %s/%s", ErrNotEvent, p.Kind, p.Message)
	}
	if !sameNamespace(p.Namespace, namespace) {
		return Result{}, fmt.Errorf("%w: got %q, want %q", ErrWrongNamespace, p.Namespace, namespace)
	}

	args, err := eventArgs(p)
	if err != nil {
		return Result{}, err
	}
	if len(args) < 2 {
		return Result{}, fmt.Errorf("%w: expected 2 elements, got %d", ErrMalformedPayload, len(args))
	}

	var inner string
	if err := json.Unmarshal(args[1], &inner); err != nil {
		return Result{}, fmt.Errorf("%w: second element is not a JSON string", ErrMalformedPayload)
	}

	var body struct {
		HTML    *string         `json:"html"`
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal([]byte(inner), &body); err != nil {
		return Result{}, fmt.Errorf("%w: inner object: %v", ErrMalformedPayload, err)
	}

	if truthy(body.Error) {
		msg := stringOrEmpty(body.Message)
		if msg == "" {
			msg = defaultDenialMessage
		}
		return Result{Denied: true, Message: msg}, nil
	}

	if body.HTML == nil {
		return Result{}, fmt.Errorf("%w: html", ErrMissingField)
	}
	return Result{HTML: *body.HTML}, nil
}

// truthy mirrors how the renderer's own client treats the error flag:
// false, null, 0, "" and empty containers are falsy.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func stringOrEmpty(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
