package msgs

import (
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/arduinode/pkg/framework"
	"github.com/robotalks/arduinode/pkg/l0/comm"
)

type plainMsg struct{}

func (m *plainMsg) NewMessage() fx.Message { return &plainMsg{} }

func TestEnvelope(t *testing.T) {
	req := NewCommandRequest("a/read/0")
	data, err := Encode(req)
	require.NoError(t, err)

	typed, err := DecodeTyped(data)
	require.NoError(t, err)
	assert.Equal(t, CommandRequestTypeID, typed.TypeID)
	assert.True(t, typed.IsCommand())
	assert.False(t, typed.IsReply())
	assert.False(t, typed.IsEvent())

	msg, err := typed.Decode()
	require.NoError(t, err)
	assert.Equal(t, req, msg)
}

func TestEnvelopeKinds(t *testing.T) {
	typed, err := TypedFrom(&CommandReply{ID: "x", Ok: true})
	require.NoError(t, err)
	assert.True(t, typed.IsReply())

	typed, err = TypedFrom(&Event{Type: "di"})
	require.NoError(t, err)
	assert.True(t, typed.IsEvent())
	assert.False(t, typed.IsCommand())

	_, err = (&Typed{TypeID: GroupCustom | 1}).Decode()
	var unknown *ErrUnknownType
	require.ErrorAs(t, err, &unknown)

	_, err = TypedFrom(&plainMsg{})
	require.ErrorIs(t, err, ErrNotSerializable)
}

func TestCommandReply(t *testing.T) {
	msg := comm.Classify(`{"msg":"OK","port":0,"val":982}`, comm.DefaultHandshake)
	m := NewCommandReply("01H", msg.Reply, nil)
	assert.True(t, m.Ok)
	require.NoError(t, m.Err())
	reply, err := m.Reply()
	require.NoError(t, err)
	val, err := reply.Int("val")
	require.NoError(t, err)
	assert.Equal(t, 982, val)

	msg = comm.Classify(`{"msg":"NG","error":"Illegal type."}`, comm.DefaultHandshake)
	m = NewCommandReply("01J", msg.Reply, msg.Reply.Err())
	assert.False(t, m.Ok)
	assert.EqualError(t, m.Err(), "Illegal type.")

	m = NewCommandReply("01K", nil, comm.ErrBusy)
	assert.False(t, m.Ok)
	_, err = m.Reply()
	assert.True(t, errors.Is(err, ErrNoPayload))
}

func TestEvent(t *testing.T) {
	msg := comm.Classify(`{"event":"int","data":{"num":1,"count":3}}`, comm.DefaultHandshake)
	at := time.Unix(1700000000, 123000000)
	ev := NewEvent(msg.Event, at)
	assert.Equal(t, "int", ev.Type)
	assert.Equal(t, at, ev.Time())
	var data struct {
		Num   int `json:"num"`
		Count int `json:"count"`
	}
	require.NoError(t, ev.Decode(&data))
	assert.Equal(t, 3, data.Count)

	decoded, err := roundTrip(ev)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	assert.NotEqual(t, a, b)
	id, err := ulid.ParseStrict(a)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ulid.Time(id.Time()), time.Minute)
}

func roundTrip(msg SerializableMessage) (interface{}, error) {
	data, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
