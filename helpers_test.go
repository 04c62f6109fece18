package protopool

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tUint32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
)

func file(name, pkg string, deps ...string) *descriptorpb.FileDescriptorProto {
	fd := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(name),
		Dependency: deps,
	}
	if pkg != "" {
		fd.Package = proto.String(pkg)
	}
	return fd
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, number int32, typ fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// refField is a field referencing a named type. A zero typ leaves the wire
// type unset so the builder has to infer it.
func refField(name string, number int32, typ fieldType, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, typ)
	if typ == 0 {
		f.Type = nil
	}
	f.TypeName = proto.String(typeName)
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func withDefault(f *descriptorpb.FieldDescriptorProto, literal string) *descriptorpb.FieldDescriptorProto {
	f.DefaultValue = proto.String(literal)
	return f
}

func extension(name string, number int32, typ fieldType, extendee string) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, typ)
	f.Extendee = proto.String(extendee)
	return f
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

// shopFiles is a small schema set: money.proto, order.proto importing it,
// and ext.proto extending Order.
func shopFiles() []*descriptorpb.FileDescriptorProto {
	money := file("shop/money.proto", "shop")
	money.MessageType = []*descriptorpb.DescriptorProto{
		message("Money",
			field("units", 1, tInt64),
			refField("currency", 2, tEnum, "Currency"),
		),
	}
	money.EnumType = []*descriptorpb.EnumDescriptorProto{enum("Currency", "EUR", "USD")}

	order := file("shop/order.proto", "shop", "shop/money.proto")
	orderMsg := message("Order",
		field("id", 1, tString),
		refField("total", 2, tMessage, "Money"),
		repeated(refField("lines", 3, tMessage, ".shop.Order.Line")),
		refField("state", 4, 0, "State"),
	)
	orderMsg.NestedType = []*descriptorpb.DescriptorProto{message("Line", field("sku", 1, tString))}
	orderMsg.EnumType = []*descriptorpb.EnumDescriptorProto{enum("State", "OPEN", "CLOSED")}
	orderMsg.ExtensionRange = []*descriptorpb.DescriptorProto_ExtensionRange{
		{Start: proto.Int32(100), End: proto.Int32(200)},
	}
	order.MessageType = []*descriptorpb.DescriptorProto{orderMsg}
	order.Service = []*descriptorpb.ServiceDescriptorProto{{
		Name: proto.String("Orders"),
		Method: []*descriptorpb.MethodDescriptorProto{
			{Name: proto.String("Place"), InputType: proto.String("Order"), OutputType: proto.String(".shop.Order")},
			{
				Name:            proto.String("Watch"),
				InputType:       proto.String("Order"),
				OutputType:      proto.String("Order"),
				ServerStreaming: proto.Bool(true),
			},
		},
	}}

	ext := file("shop/ext.proto", "shop", "shop/order.proto")
	ext.Extension = []*descriptorpb.FieldDescriptorProto{extension("priority", 100, tInt32, "Order")}
	holder := message("Holder")
	holder.Extension = []*descriptorpb.FieldDescriptorProto{extension("note", 101, tString, ".shop.Order")}
	ext.MessageType = []*descriptorpb.DescriptorProto{holder}

	return []*descriptorpb.FileDescriptorProto{money, order, ext}
}

func newTestDatabase(t *testing.T, files ...*descriptorpb.FileDescriptorProto) *MemoryDatabase {
	t.Helper()
	db := NewMemoryDatabase()
	for _, fd := range files {
		require.NoError(t, db.Add(fd))
	}
	return db
}

func newShopPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	opts = append([]Option{WithDatabase(newTestDatabase(t, shopFiles()...))}, opts...)
	return New(opts...)
}
