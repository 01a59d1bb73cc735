package msgs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/oklog/ulid/v2"

	fx "github.com/robotalks/arduinode/pkg/framework"
	"github.com/robotalks/arduinode/pkg/l0/comm"
)

// CommandRequest asks the bridge to execute a command line.
type CommandRequest struct {
	ID      string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Command string `protobuf:"bytes,2,opt,name=command,proto3" json:"command,omitempty"`
}

// NewCommandRequest creates a CommandRequest with a new ID.
func NewCommandRequest(command string) *CommandRequest {
	return &CommandRequest{ID: NewRequestID(), Command: command}
}

// NewMessage implements Message.
func (m *CommandRequest) NewMessage() fx.Message { return &CommandRequest{} }

// TypeID implements SerializableMessage.
func (m *CommandRequest) TypeID() uint32 { return CommandRequestTypeID }

// Serializable implements SerializableMessage.
func (m *CommandRequest) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandRequest) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandRequest) Reset() { *m = CommandRequest{} }

// String implements proto.Message.
func (m *CommandRequest) String() string { return proto.CompactTextString(m) }

// CommandReply is the outcome of a CommandRequest.
type CommandReply struct {
	ID    string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Ok    bool   `protobuf:"varint,2,opt,name=ok,proto3" json:"ok,omitempty"`
	Error string `protobuf:"bytes,3,opt,name=error,proto3" json:"error,omitempty"`
	// Payload is the reply line from the device, empty if none arrived.
	Payload string `protobuf:"bytes,4,opt,name=payload,proto3" json:"payload,omitempty"`
}

// NewCommandReply creates a CommandReply from the result of a command.
func NewCommandReply(id string, reply *comm.Reply, err error) *CommandReply {
	m := &CommandReply{ID: id, Ok: err == nil}
	if reply != nil {
		m.Payload = string(reply.Raw)
	}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// Reply decodes the device reply carried in Payload.
func (m *CommandReply) Reply() (*comm.Reply, error) {
	if m.Payload == "" {
		return nil, ErrNoPayload
	}
	msg := comm.Classify(m.Payload, comm.DefaultHandshake)
	if msg.Kind != comm.KindReply {
		return nil, &comm.ProtocolError{Line: m.Payload, Err: msg.Err}
	}
	return msg.Reply, nil
}

// Err returns the failure as an error, or nil.
func (m *CommandReply) Err() error {
	if m.Ok {
		return nil
	}
	return errors.New(m.Error)
}

// NewMessage implements Message.
func (m *CommandReply) NewMessage() fx.Message { return &CommandReply{} }

// TypeID implements SerializableMessage.
func (m *CommandReply) TypeID() uint32 { return CommandReplyTypeID }

// Serializable implements SerializableMessage.
func (m *CommandReply) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandReply) Reset() { *m = CommandReply{} }

// String implements proto.Message.
func (m *CommandReply) String() string { return proto.CompactTextString(m) }

// Event is a device event forwarded by the bridge.
type Event struct {
	Type string `protobuf:"bytes,1,opt,name=type,proto3" json:"type,omitempty"`
	// Data is the JSON payload of the event.
	Data string `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
	// Timestamp is when the bridge received the event, in Unix milliseconds.
	Timestamp int64 `protobuf:"varint,3,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// NewEvent creates an Event from a device event.
func NewEvent(ev *comm.Event, at time.Time) *Event {
	return &Event{Type: ev.Type, Data: string(ev.Data), Timestamp: at.UnixNano() / int64(time.Millisecond)}
}

// Time returns Timestamp as time.Time.
func (m *Event) Time() time.Time {
	return time.Unix(0, m.Timestamp*int64(time.Millisecond))
}

// Decode decodes Data into v.
func (m *Event) Decode(v interface{}) error {
	if m.Data == "" {
		return ErrNoPayload
	}
	return json.Unmarshal([]byte(m.Data), v)
}

// NewMessage implements Message.
func (m *Event) NewMessage() fx.Message { return &Event{} }

// TypeID implements SerializableMessage.
func (m *Event) TypeID() uint32 { return EventTypeID }

// Serializable implements SerializableMessage.
func (m *Event) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *Event) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// NewRequestID generates a unique, time ordered request ID.
func NewRequestID() string {
	return ulid.Make().String()
}

// TypeID Groups
const (
	GroupDevice uint32 = 0x00010000
	GroupCustom uint32 = 0x7f000000 // base group id for custom messages.
)

// TypeIDs
const (
	CommandRequestTypeID uint32 = GroupDevice | 0x0001
	CommandReplyTypeID   uint32 = CommandRequestTypeID | TypeIDMaskReply
	EventTypeID          uint32 = TypeIDKindEvent | GroupDevice | 0x0001
)

var (
	// ErrNoPayload indicates the message carries no payload.
	ErrNoPayload = errors.New("no payload")
)
