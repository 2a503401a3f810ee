// Package canbus describes the wire contract of the canbus relay service.
//
// The schema is assembled from descriptor protos at init and registered with
// the global registry, so reflection-based tools (grpcurl, server reflection)
// see it like any compiled .proto. Messages travel as dynamic messages and are
// converted to the plain Go structs in messages.go at the package boundary.
package canbus

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	protoPackage = "farm_ng.canbus.proto"
	fileName     = "farm_ng/canbus/canbus.proto"

	servicePackage  = "farm_ng.service.proto"
	serviceFileName = "farm_ng/service/service.proto"

	// ServiceName is the fully qualified gRPC service name.
	ServiceName = protoPackage + ".CanbusService"
)

// File is the registered descriptor of canbus.proto. ServiceFile holds the
// shared service state types it imports.
var (
	File        protoreflect.FileDescriptor
	ServiceFile protoreflect.FileDescriptor
)

var (
	serviceStateDesc             protoreflect.EnumDescriptor
	rawCanbusMessageDesc         protoreflect.MessageDescriptor
	getServiceStateRequestDesc   protoreflect.MessageDescriptor
	getServiceStateReplyDesc     protoreflect.MessageDescriptor
	streamRawRequestDesc         protoreflect.MessageDescriptor
	streamCanbusReplyDesc        protoreflect.MessageDescriptor
	sendCanbusMessageRequestDesc protoreflect.MessageDescriptor
	sendCanbusMessageReplyDesc   protoreflect.MessageDescriptor
)

func init() {
	ServiceFile = register(serviceFileDescriptorProto())
	File = register(fileDescriptorProto())

	serviceStateDesc = ServiceFile.Enums().ByName("ServiceState")
	getServiceStateRequestDesc = ServiceFile.Messages().ByName("GetServiceStateRequest")
	getServiceStateReplyDesc = ServiceFile.Messages().ByName("GetServiceStateReply")

	msgs := File.Messages()
	rawCanbusMessageDesc = msgs.ByName("RawCanbusMessage")
	streamRawRequestDesc = msgs.ByName("StreamCanbusRequest")
	streamCanbusReplyDesc = msgs.ByName("StreamCanbusReply")
	sendCanbusMessageRequestDesc = msgs.ByName("SendCanbusMessageRequest")
	sendCanbusMessageReplyDesc = msgs.ByName("SendCanbusMessageReply")
}

func register(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("canbus: build %s: %v", fdp.GetName(), err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("canbus: register %s: %v", fdp.GetName(), err))
	}
	return fd
}

func serviceFileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(serviceFileName),
		Package: proto.String(servicePackage),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("ServiceState"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				enumValue("UNKNOWN", int32(ServiceStateUnknown)),
				enumValue("STOPPED", int32(ServiceStateStopped)),
				enumValue("RUNNING", int32(ServiceStateRunning)),
				enumValue("IDLE", int32(ServiceStateIdle)),
				enumValue("UNAVAILABLE", int32(ServiceStateUnavailable)),
				enumValue("ERROR", int32(ServiceStateError)),
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("GetServiceStateRequest"),
			},
			{
				Name: proto.String("GetServiceStateReply"),
				Field: []*descriptorpb.FieldDescriptorProto{
					withType(field("state", 1, descriptorpb.FieldDescriptorProto_TYPE_ENUM), proto.String("."+servicePackage+".ServiceState")),
					field("uptime", 2, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
				},
			},
		},
	}
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	ref := func(name string) *string { return proto.String("." + protoPackage + "." + name) }
	svc := func(name string) *string { return proto.String("." + servicePackage + "." + name) }

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(fileName),
		Package:    proto.String(protoPackage),
		Syntax:     proto.String("proto3"),
		Dependency: []string{serviceFileName},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("RawCanbusMessage"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("stamp", 1, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					field("id", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
					field("remote_transmission", 3, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					field("error", 4, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					field("data", 5, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
			{
				Name: proto.String("RawCanbusMessages"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(withType(field("messages", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE), ref("RawCanbusMessage"))),
				},
			},
			{
				Name: proto.String("StreamCanbusRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("every_n", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				},
			},
			{
				Name: proto.String("StreamCanbusReply"),
				Field: []*descriptorpb.FieldDescriptorProto{
					withType(field("messages", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE), ref("RawCanbusMessages")),
				},
			},
			{
				Name: proto.String("SendCanbusMessageRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(withType(field("messages", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE), ref("RawCanbusMessage"))),
				},
			},
			{
				Name: proto.String("SendCanbusMessageReply"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("success", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("CanbusService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String(methodGetServiceState),
					InputType:  svc("GetServiceStateRequest"),
					OutputType: svc("GetServiceStateReply"),
				},
				{
					Name:            proto.String(methodStreamRaw),
					InputType:       ref("StreamCanbusRequest"),
					OutputType:      ref("StreamCanbusReply"),
					ServerStreaming: proto.Bool(true),
				},
				{
					Name:       proto.String(methodSendCanbusMessage),
					InputType:  ref("SendCanbusMessageRequest"),
					OutputType: ref("SendCanbusMessageReply"),
				},
			},
		}},
	}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func withType(f *descriptorpb.FieldDescriptorProto, typeName *string) *descriptorpb.FieldDescriptorProto {
	f.TypeName = typeName
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func enumValue(name string, number int32) *descriptorpb.EnumValueDescriptorProto {
	return &descriptorpb.EnumValueDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
	}
}
