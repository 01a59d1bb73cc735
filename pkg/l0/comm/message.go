package comm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultHandshake is the line the peer prints once it is ready for commands.
const DefaultHandshake = "READY"

// Kind is the category of a received line.
type Kind int

// Kinds
const (
	KindMalformed Kind = iota
	KindHandshake
	KindReply
	KindEvent
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindReply:
		return "reply"
	case KindEvent:
		return "event"
	default:
		return "malformed"
	}
}

// Reply status values in the "msg" field.
const (
	ReplyOK = "OK"
	ReplyNG = "NG"
)

// Reply is the answer to a command.
type Reply struct {
	// Msg is "OK" on success and "NG" on failure.
	Msg string
	// Error is the cause reported with a failure.
	Error string
	// Fields holds all fields of the reply, including msg and error.
	Fields map[string]json.RawMessage
	// Raw is the line as received.
	Raw json.RawMessage
}

// OK tells if the reply indicates success.
func (r *Reply) OK() bool {
	return r.Msg != ReplyNG
}

// Err returns a *CommandError for a failure reply, or nil.
func (r *Reply) Err() error {
	if r.OK() {
		return nil
	}
	return &CommandError{Message: r.Error, Reply: r}
}

// Has tells if the field is present.
func (r *Reply) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Int decodes a numeric field.
func (r *Reply) Int(key string) (int, error) {
	var v int
	err := r.Field(key, &v)
	return v, err
}

// Text decodes a string field.
func (r *Reply) Text(key string) (string, error) {
	var v string
	err := r.Field(key, &v)
	return v, err
}

// Field decodes a single field into v.
func (r *Reply) Field(key string, v interface{}) error {
	raw, ok := r.Fields[key]
	if !ok {
		return fmt.Errorf("field %q not found", key)
	}
	return json.Unmarshal(raw, v)
}

// Decode decodes the whole reply into v.
func (r *Reply) Decode(v interface{}) error {
	return json.Unmarshal(r.Raw, v)
}

// Event is an unsolicited message from the peer.
type Event struct {
	// Type is the value of the "event" discriminator, e.g. "ai", "di", "int".
	Type string
	// Data is the nested payload, nil if absent.
	Data json.RawMessage
	// Raw is the line as received.
	Raw json.RawMessage
}

// Decode decodes the payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return errors.New("event has no data")
	}
	return json.Unmarshal(e.Data, v)
}

// Message is the classified form of one line.
type Message struct {
	Kind  Kind
	Line  string
	Reply *Reply
	Event *Event
	// Err is the parse failure of a malformed line.
	Err error
}

// Classify categorizes a line received from the peer.
// It has no side effects, and the same line always gets the same result.
func Classify(line, handshake string) Message {
	msg := Message{Line: line}
	if line == handshake {
		msg.Kind = KindHandshake
		return msg
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		msg.Err = err
		return msg
	}
	if fields == nil {
		msg.Err = errors.New("not a JSON object")
		return msg
	}
	raw := json.RawMessage(line)
	if typ, ok := fields["event"]; ok {
		msg.Kind = KindEvent
		msg.Event = &Event{Type: stringOrRaw(typ), Data: fields["data"], Raw: raw}
		return msg
	}
	msg.Kind = KindReply
	msg.Reply = &Reply{Fields: fields, Raw: raw}
	if v, ok := fields["msg"]; ok {
		msg.Reply.Msg = stringOrRaw(v)
	}
	if v, ok := fields["error"]; ok {
		msg.Reply.Error = stringOrRaw(v)
	}
	return msg
}

func stringOrRaw(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
