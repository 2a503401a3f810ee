package canbus

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

type ServiceState int32

const (
	ServiceStateUnknown ServiceState = iota
	ServiceStateStopped
	ServiceStateRunning
	ServiceStateIdle
	ServiceStateUnavailable
	ServiceStateError
)

func (s ServiceState) String() string {
	v := serviceStateDesc.Values().ByNumber(protoreflect.EnumNumber(s))
	if v == nil {
		return "UNKNOWN"
	}
	return string(v.Name())
}

// RawCanbusMessage is one frame as seen by the relay.
type RawCanbusMessage struct {
	Stamp              float64
	ID                 uint32
	RemoteTransmission bool
	Error              bool
	Data               []byte
}

type GetServiceStateRequest struct{}

type GetServiceStateReply struct {
	State  ServiceState
	Uptime float64
}

type StreamRawRequest struct {
	// EveryN forwards only every n-th frame. Zero and one forward all.
	EveryN uint32
}

// StreamCanbusReply is one batch of frames. On the wire the frames sit inside
// a RawCanbusMessages wrapper under field 1.
type StreamCanbusReply struct {
	Messages []RawCanbusMessage
}

type SendCanbusMessageRequest struct {
	Messages []RawCanbusMessage
}

type SendCanbusMessageReply struct {
	Success bool
}

// Marshal helpers. Zero scalars are left unset, matching proto3 implicit
// presence.

func setFloat(m protoreflect.Message, name protoreflect.Name, v float64) {
	if v != 0 {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfFloat64(v))
	}
}

func setUint32(m protoreflect.Message, name protoreflect.Name, v uint32) {
	if v != 0 {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfUint32(v))
	}
}

func setBool(m protoreflect.Message, name protoreflect.Name, v bool) {
	if v {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfBool(v))
	}
}

func setBytes(m protoreflect.Message, name protoreflect.Name, v []byte) {
	if len(v) > 0 {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfBytes(append([]byte(nil), v...)))
	}
}

func setEnum(m protoreflect.Message, name protoreflect.Name, v int32) {
	if v != 0 {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfEnum(protoreflect.EnumNumber(v)))
	}
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}

func (r RawCanbusMessage) marshalTo(m protoreflect.Message) {
	setFloat(m, "stamp", r.Stamp)
	setUint32(m, "id", r.ID)
	setBool(m, "remote_transmission", r.RemoteTransmission)
	setBool(m, "error", r.Error)
	setBytes(m, "data", r.Data)
}

func rawFromProto(m protoreflect.Message) RawCanbusMessage {
	var data []byte
	if b := get(m, "data").Bytes(); len(b) > 0 {
		data = append([]byte(nil), b...)
	}
	return RawCanbusMessage{
		Stamp:              get(m, "stamp").Float(),
		ID:                 uint32(get(m, "id").Uint()),
		RemoteTransmission: get(m, "remote_transmission").Bool(),
		Error:              get(m, "error").Bool(),
		Data:               data,
	}
}

func setRawList(m protoreflect.Message, msgs []RawCanbusMessage) {
	if len(msgs) == 0 {
		return
	}
	list := m.Mutable(m.Descriptor().Fields().ByName("messages")).List()
	for _, r := range msgs {
		el := list.NewElement()
		r.marshalTo(el.Message())
		list.Append(el)
	}
}

func rawList(m protoreflect.Message) []RawCanbusMessage {
	list := get(m, "messages").List()
	if list.Len() == 0 {
		return nil
	}
	out := make([]RawCanbusMessage, list.Len())
	for i := 0; i < list.Len(); i++ {
		out[i] = rawFromProto(list.Get(i).Message())
	}
	return out
}

// Conversions between the Go structs and their dynamic wire form.

func (GetServiceStateRequest) toProto() proto.Message {
	return dynamicpb.NewMessage(getServiceStateRequestDesc)
}

func (r GetServiceStateReply) toProto() proto.Message {
	m := dynamicpb.NewMessage(getServiceStateReplyDesc)
	setEnum(m, "state", int32(r.State))
	setFloat(m, "uptime", r.Uptime)
	return m
}

func getServiceStateReplyFromProto(m protoreflect.Message) *GetServiceStateReply {
	return &GetServiceStateReply{
		State:  ServiceState(get(m, "state").Enum()),
		Uptime: get(m, "uptime").Float(),
	}
}

func (r StreamRawRequest) toProto() proto.Message {
	m := dynamicpb.NewMessage(streamRawRequestDesc)
	setUint32(m, "every_n", r.EveryN)
	return m
}

func streamRawRequestFromProto(m protoreflect.Message) *StreamRawRequest {
	return &StreamRawRequest{EveryN: uint32(get(m, "every_n").Uint())}
}

func (r StreamCanbusReply) toProto() proto.Message {
	m := dynamicpb.NewMessage(streamCanbusReplyDesc)
	if len(r.Messages) > 0 {
		wrapper := m.Mutable(m.Descriptor().Fields().ByName("messages")).Message()
		setRawList(wrapper, r.Messages)
	}
	return m
}

func streamCanbusReplyFromProto(m protoreflect.Message) *StreamCanbusReply {
	fd := m.Descriptor().Fields().ByName("messages")
	if !m.Has(fd) {
		return &StreamCanbusReply{}
	}
	return &StreamCanbusReply{Messages: rawList(m.Get(fd).Message())}
}

func (r SendCanbusMessageRequest) toProto() proto.Message {
	m := dynamicpb.NewMessage(sendCanbusMessageRequestDesc)
	setRawList(m, r.Messages)
	return m
}

func sendCanbusMessageRequestFromProto(m protoreflect.Message) *SendCanbusMessageRequest {
	return &SendCanbusMessageRequest{Messages: rawList(m)}
}

func (r SendCanbusMessageReply) toProto() proto.Message {
	m := dynamicpb.NewMessage(sendCanbusMessageReplyDesc)
	setBool(m, "success", r.Success)
	return m
}

func sendCanbusMessageReplyFromProto(m protoreflect.Message) *SendCanbusMessageReply {
	return &SendCanbusMessageReply{Success: get(m, "success").Bool()}
}
