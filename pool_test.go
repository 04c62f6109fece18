package protopool

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// =============================================================================
// Lazy loading
// =============================================================================

func TestFindMessageByName_LoadsDependencies(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	order, err := p.FindMessageByName("shop.Order")
	require.NoError(t, err)
	assert.Equal(t, "Order", order.Name)
	assert.Equal(t, "shop/order.proto", order.File.Name)

	money, err := p.FindMessageByName("shop.Money")
	require.NoError(t, err)
	assert.Same(t, money, order.FieldByName("total").MessageType)

	names := make([]string, 0)
	for _, f := range p.Files() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"shop/money.proto", "shop/order.proto"}, names)
}

func TestFindMessageByName_Idempotent(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	first, err := p.FindMessageByName("shop.Order.Line")
	require.NoError(t, err)
	second, err := p.FindMessageByName(".shop.Order.Line")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestFindMessageByName_NotFound(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	_, err := p.FindMessageByName("shop.Invoice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.FindFileByName("shop/invoice.proto")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindMessageByName_WithoutDatabase(t *testing.T) {
	t.Parallel()
	p := New()
	for _, fd := range shopFiles() {
		require.NoError(t, p.Add(fd))
	}

	m, err := p.FindMessageByName("shop.Money")
	require.NoError(t, err)
	assert.Equal(t, "shop.Money", m.FullName)
}

func TestFindFileByName(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	f, err := p.FindFileByName("shop/ext.proto")
	require.NoError(t, err)
	assert.Equal(t, "shop", f.Package)
	assert.Equal(t, SyntaxProto2, f.Syntax)
	require.Len(t, f.Dependencies, 1)
	assert.Equal(t, "shop/order.proto", f.Dependencies[0].Name)
	assert.NotNil(t, f.Proto)

	again, err := p.FindFileByName("shop/ext.proto")
	require.NoError(t, err)
	assert.Same(t, f, again)
}

func TestResolutionIsOrderIndependent(t *testing.T) {
	t.Parallel()

	dependencyFirst := newShopPool(t)
	_, err := dependencyFirst.FindFileByName("shop/money.proto")
	require.NoError(t, err)
	a, err := dependencyFirst.FindFieldByName("shop.Order.total")
	require.NoError(t, err)

	dependentFirst := newShopPool(t)
	b, err := dependentFirst.FindFieldByName("shop.Order.total")
	require.NoError(t, err)

	assert.Equal(t, a.MessageType.FullName, b.MessageType.FullName)
	money, err := dependentFirst.FindMessageByName("shop.Money")
	require.NoError(t, err)
	assert.Same(t, money, b.MessageType)
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	const n = 16
	results := make([]*MessageDescriptor, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := p.FindMessageByName("shop.Order")
			if err == nil {
				results[i] = m
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

// =============================================================================
// Symbol lookups
// =============================================================================

func TestFindEnumByName(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	e, err := p.FindEnumByName("shop.Order.State")
	require.NoError(t, err)
	require.Len(t, e.Values, 2)
	assert.Equal(t, "shop.Order.CLOSED", e.Values[1].FullName)
	assert.Same(t, e, e.Values[1].Enum)

	top, err := p.FindEnumByName("shop.Currency")
	require.NoError(t, err)
	assert.Nil(t, top.Parent)
}

func TestFindFileContainingSymbol(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	tests := []struct {
		symbol string
		file   string
	}{
		{"shop.USD", "shop/money.proto"},
		{"shop.Money.units", "shop/money.proto"},
		{"shop.Orders", "shop/order.proto"},
		{"shop.Orders.Place", "shop/order.proto"},
		{"shop.priority", "shop/ext.proto"},
	}
	for _, tt := range tests {
		f, err := p.FindFileContainingSymbol(tt.symbol)
		require.NoError(t, err, tt.symbol)
		assert.Equal(t, tt.file, f.Name, tt.symbol)
	}
}

func TestFindFileContainingSymbol_Members(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	for _, symbol := range []string{
		"shop.Order.id",
		"shop.Order.OPEN",
		"shop.Holder.note",
		"shop.Orders.Watch",
	} {
		f, err := p.FindFileContainingSymbol(symbol)
		require.NoError(t, err, symbol)
		require.NotNil(t, f, symbol)
	}

	for _, symbol := range []string{
		"shop.Order.no_such_member",
		"shop.Orders.NoSuchMethod",
		"shop.Money.units.deeper",
	} {
		f, err := p.FindFileContainingSymbol(symbol)
		assert.ErrorIs(t, err, ErrNotFound, symbol)
		assert.Nil(t, f, symbol)
	}
}

func TestFindFieldAndOneofByName(t *testing.T) {
	t.Parallel()
	fd := file("pay.proto", "pay")
	m := message("Payment",
		field("card", 1, tString),
		field("iban", 2, tString),
		field("amount", 3, tInt64),
	)
	m.Field[0].OneofIndex = proto.Int32(0)
	m.Field[1].OneofIndex = proto.Int32(0)
	m.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("method")}}
	fd.MessageType = []*descriptorpb.DescriptorProto{m}
	p := New(WithDatabase(newTestDatabase(t, fd)))

	o, err := p.FindOneofByName("pay.Payment.method")
	require.NoError(t, err)
	assert.Equal(t, "pay.Payment.method", o.FullName)
	require.Len(t, o.Fields, 2)
	assert.Equal(t, "card", o.Fields[0].Name)
	assert.Equal(t, "iban", o.Fields[1].Name)

	card, err := p.FindFieldByName("pay.Payment.card")
	require.NoError(t, err)
	assert.Same(t, o, card.ContainingOneof)

	amount, err := p.FindFieldByName("pay.Payment.amount")
	require.NoError(t, err)
	assert.Nil(t, amount.ContainingOneof)
	assert.Equal(t, 2, amount.Index)

	_, err = p.FindFieldByName("pay.Payment.missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.FindOneofByName("pay.Payment.missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindServiceByName(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	s, err := p.FindServiceByName("shop.Orders")
	require.NoError(t, err)
	require.Len(t, s.Methods, 2)

	place := s.MethodByName("Place")
	require.NotNil(t, place)
	assert.Equal(t, "shop.Orders.Place", place.FullName)
	assert.Equal(t, "shop.Order", place.InputType.FullName)
	assert.Same(t, place.InputType, place.OutputType)
	assert.False(t, place.ServerStreaming)

	watch := s.MethodByName("Watch")
	require.NotNil(t, watch)
	assert.True(t, watch.ServerStreaming)
	assert.False(t, watch.ClientStreaming)
}

// =============================================================================
// Extensions
// =============================================================================

func TestFindExtensionByName(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	priority, err := p.FindExtensionByName("shop.priority")
	require.NoError(t, err)
	assert.True(t, priority.IsExtension)
	assert.Nil(t, priority.ExtensionScope)
	assert.Equal(t, "shop.Order", priority.ContainingType.FullName)

	note, err := p.FindExtensionByName(".shop.Holder.note")
	require.NoError(t, err)
	assert.Equal(t, "shop.Holder", note.ExtensionScope.FullName)
	assert.Same(t, priority.ContainingType, note.ContainingType)

	_, err = p.FindExtensionByName("shop.Holder.missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindExtensionByNumber(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)

	order, err := p.FindMessageByName("shop.Order")
	require.NoError(t, err)
	assert.True(t, order.IsExtendable())
	assert.True(t, order.IsExtensionNumber(199))
	assert.False(t, order.IsExtensionNumber(200))

	// Not discovered lazily: ext.proto has not been built yet.
	_, err = p.FindExtensionByNumber(order, 100)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, p.FindAllExtensions(order))

	_, err = p.FindFileByName("shop/ext.proto")
	require.NoError(t, err)

	x, err := p.FindExtensionByNumber(order, 100)
	require.NoError(t, err)
	assert.Equal(t, "shop.priority", x.FullName)

	all := p.FindAllExtensions(order)
	require.Len(t, all, 2)
	assert.Equal(t, int32(100), all[0].Number)
	assert.Equal(t, int32(101), all[1].Number)
}

func TestFindExtensionByNumber_NilMessage(t *testing.T) {
	t.Parallel()
	p := newShopPool(t)
	_, err := p.FindFileByName("shop/ext.proto")
	require.NoError(t, err)

	_, err = p.FindExtensionByNumber(nil, 100)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, p.FindAllExtensions(nil))
}

func TestBuildRejectsExtensionNumberCollision(t *testing.T) {
	t.Parallel()
	clash := file("shop/clash.proto", "shop", "shop/order.proto")
	clash.Extension = []*descriptorpb.FieldDescriptorProto{extension("urgent", 100, tBool, "Order")}
	clash.MessageType = []*descriptorpb.DescriptorProto{message("Clash")}
	p := New(WithDatabase(newTestDatabase(t, append(shopFiles(), clash)...)))

	_, err := p.FindFileByName("shop/ext.proto")
	require.NoError(t, err)

	_, err = p.FindFileByName("shop/clash.proto")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtensionNumberCollision)

	var collision *ExtensionNumberCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "shop.Order", collision.Containing)
	assert.Equal(t, int32(100), collision.Number)
	assert.Equal(t, "shop.priority", collision.Existing)
	assert.Equal(t, "shop.urgent", collision.New)

	// Nothing from the rejected file was registered.
	_, err = p.FindMessageByName("shop.Clash")
	assert.Error(t, err)
	for _, f := range p.Files() {
		assert.NotEqual(t, "shop/clash.proto", f.Name)
	}
}

func TestAddExtensionDescriptor(t *testing.T) {
	t.Parallel()
	p := New()
	target := &MessageDescriptor{Name: "M", FullName: "x.M"}
	fd := &FileDescriptor{Name: "x/ext.proto", Package: "x"}
	first := &FieldDescriptor{Name: "a", FullName: "x.a", Number: 5, IsExtension: true, ContainingType: target, File: fd}
	other := &FieldDescriptor{Name: "b", FullName: "x.b", Number: 5, IsExtension: true, ContainingType: target, File: fd}

	require.NoError(t, p.AddExtensionDescriptor(first))
	require.NoError(t, p.AddExtensionDescriptor(first))

	err := p.AddExtensionDescriptor(other)
	assert.ErrorIs(t, err, ErrExtensionNumberCollision)

	got, err := p.FindExtensionByNumber(target, 5)
	require.NoError(t, err)
	assert.Same(t, first, got)

	byName, err := p.FindExtensionByName("x.a")
	require.NoError(t, err)
	assert.Same(t, first, byName)
	assert.Empty(t, p.Conflicts())

	err = p.AddExtensionDescriptor(&FieldDescriptor{Name: "plain", FullName: "x.M.plain"})
	assert.ErrorIs(t, err, ErrMalformedSchema)
}

func TestAddExtensionDescriptor_SameNameDifferentDefinition(t *testing.T) {
	t.Parallel()
	p := New()
	target := &MessageDescriptor{Name: "M", FullName: "x.M"}
	first := &FieldDescriptor{Name: "a", FullName: "x.a", Number: 5, Type: TypeInt32, IsExtension: true, ContainingType: target}
	retyped := &FieldDescriptor{Name: "a", FullName: "x.a", Number: 5, Type: TypeString, IsExtension: true, ContainingType: target}
	copied := &FieldDescriptor{Name: "a", FullName: "x.a", Number: 5, Type: TypeInt32, IsExtension: true, ContainingType: target}

	require.NoError(t, p.AddExtensionDescriptor(first))
	assert.ErrorIs(t, p.AddExtensionDescriptor(retyped), ErrExtensionNumberCollision)
	require.NoError(t, p.AddExtensionDescriptor(copied))

	got, err := p.FindExtensionByNumber(target, 5)
	require.NoError(t, err)
	assert.Same(t, first, got)
}

// =============================================================================
// Conflicts
// =============================================================================

func TestConflictIsNotFatal(t *testing.T) {
	t.Parallel()
	a := file("a.proto", "p")
	a.MessageType = []*descriptorpb.DescriptorProto{message("Thing")}
	b := file("b.proto", "p")
	b.EnumType = []*descriptorpb.EnumDescriptorProto{enum("Thing", "ZERO")}

	logger, hook := logtest.NewNullLogger()
	p := New(WithDatabase(newTestDatabase(t, a, b)), WithLogger(logger))

	thing, err := p.FindMessageByName("p.Thing")
	require.NoError(t, err)

	_, err = p.FindFileByName("b.proto")
	require.NoError(t, err)

	again, err := p.FindMessageByName("p.Thing")
	require.NoError(t, err)
	assert.Same(t, thing, again)

	_, err = p.FindEnumByName("p.Thing")
	assert.ErrorIs(t, err, ErrNotFound)

	conflicts := p.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "p.Thing", conflicts[0].Name)
	assert.Equal(t, KindEnum, conflicts[0].Kind)
	assert.Equal(t, "b.proto", conflicts[0].File)
	assert.Equal(t, KindMessage, conflicts[0].ExistingKind)
	assert.Equal(t, "a.proto", conflicts[0].ExistingFile)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "p.Thing", entry.Data["name"])
}

func TestConflict_SameKindDifferentFile(t *testing.T) {
	t.Parallel()
	p := New()
	first := &MessageDescriptor{Name: "M", FullName: "p.M", File: &FileDescriptor{Name: "one.proto"}}
	second := &MessageDescriptor{Name: "M", FullName: "p.M", File: &FileDescriptor{Name: "two.proto"}}

	require.NoError(t, p.AddDescriptor(first))
	require.NoError(t, p.AddDescriptor(second))

	got, err := p.FindMessageByName("p.M")
	require.NoError(t, err)
	assert.Same(t, first, got)
	require.Len(t, p.Conflicts(), 1)
	assert.Equal(t, "two.proto", p.Conflicts()[0].File)
}

func TestReRegistrationIsNoOp(t *testing.T) {
	t.Parallel()
	p := New()
	fd := &FileDescriptor{Name: "one.proto", Package: "p"}
	m := &MessageDescriptor{Name: "M", FullName: "p.M", File: fd}
	e := &EnumDescriptor{Name: "E", FullName: "p.E", File: fd}
	e.Values = []*EnumValueDescriptor{{Name: "E_ZERO", FullName: "p.E_ZERO", Enum: e}}
	s := &ServiceDescriptor{Name: "S", FullName: "p.S", File: fd}

	for range 2 {
		require.NoError(t, p.AddDescriptor(m))
		require.NoError(t, p.AddEnumDescriptor(e))
		require.NoError(t, p.AddServiceDescriptor(s))
		require.NoError(t, p.AddFileDescriptor(fd))
	}
	assert.Empty(t, p.Conflicts())

	got, err := p.FindFileByName("one.proto")
	require.NoError(t, err)
	assert.Same(t, fd, got)

	owner, err := p.FindFileContainingSymbol("p.E_ZERO")
	require.NoError(t, err)
	assert.Same(t, fd, owner)

	svc, err := p.FindServiceByName("p.S")
	require.NoError(t, err)
	assert.Same(t, s, svc)
}

func TestAddFileDescriptor_IndexesTopLevelExtensions(t *testing.T) {
	t.Parallel()
	p := New()
	fd := &FileDescriptor{Name: "x.proto", Package: "x"}
	fd.Extensions = []*FieldDescriptor{{Name: "tag", FullName: "x.tag", IsExtension: true, File: fd}}
	require.NoError(t, p.AddFileDescriptor(fd))

	got, err := p.FindFileContainingSymbol("x.tag")
	require.NoError(t, err)
	assert.Same(t, fd, got)

	x, err := p.FindExtensionByName("x.tag")
	require.NoError(t, err)
	assert.Same(t, fd.Extensions[0], x)
}

// =============================================================================
// Failure modes
// =============================================================================

func TestCyclicDependency(t *testing.T) {
	t.Parallel()
	a := file("a.proto", "p", "b.proto")
	b := file("b.proto", "p", "a.proto")
	p := New(WithDatabase(newTestDatabase(t, a, b)))

	_, err := p.FindFileByName("a.proto")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	assert.Contains(t, err.Error(), "a.proto -> b.proto -> a.proto")
	assert.Empty(t, p.Files())
}

func TestMalformedSchema_UnresolvedType(t *testing.T) {
	t.Parallel()
	fd := file("bad.proto", "p")
	fd.MessageType = []*descriptorpb.DescriptorProto{
		message("Good"),
		message("Bad", refField("ghost", 1, tMessage, "Ghost")),
	}
	p := New(WithDatabase(newTestDatabase(t, fd)))

	_, err := p.FindMessageByName("p.Good")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSchema)
	assert.ErrorIs(t, err, ErrUnresolvedType)

	var malformedErr *MalformedSchemaError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, "bad.proto", malformedErr.File)
	assert.Equal(t, "p.Bad.ghost", malformedErr.Element)
	assert.Empty(t, p.Files())
}

func TestMalformedSchema_ExtendeeNotMessage(t *testing.T) {
	t.Parallel()
	fd := file("bad.proto", "p")
	fd.EnumType = []*descriptorpb.EnumDescriptorProto{enum("Color", "RED")}
	fd.Extension = []*descriptorpb.FieldDescriptorProto{extension("shade", 1, tInt32, "Color")}
	p := New(WithDatabase(newTestDatabase(t, fd)))

	_, err := p.FindFileByName("bad.proto")
	assert.ErrorIs(t, err, ErrMalformedSchema)
}

func TestMissingDependency(t *testing.T) {
	t.Parallel()
	fd := file("lonely.proto", "p", "gone.proto")
	p := New(WithDatabase(newTestDatabase(t, fd)))

	_, err := p.FindFileByName("lonely.proto")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `load dependency "gone.proto"`)
}

type failingDatabase struct{ err error }

func (d failingDatabase) FindFileByName(string) (*descriptorpb.FileDescriptorProto, error) {
	return nil, d.err
}

func (d failingDatabase) FindFileContainingSymbol(string) (*descriptorpb.FileDescriptorProto, error) {
	return nil, d.err
}

func TestDatabaseErrorIsPropagated(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk on fire")
	p := New(WithDatabase(failingDatabase{err: boom}))

	_, err := p.FindMessageByName("p.M")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Raw records
// =============================================================================

func TestAddSerializedFile(t *testing.T) {
	t.Parallel()
	fd := file("wire.proto", "wire")
	fd.Syntax = proto.String("proto3")
	fd.MessageType = []*descriptorpb.DescriptorProto{message("Ping", field("seq", 1, tUint32))}
	data, err := proto.Marshal(fd)
	require.NoError(t, err)

	p := New()
	f, err := p.AddSerializedFile(data)
	require.NoError(t, err)
	assert.Equal(t, SyntaxProto3, f.Syntax)
	assert.Equal(t, SyntaxProto3, f.Messages[0].Syntax)

	_, err = p.AddSerializedFile([]byte{0xff})
	assert.Error(t, err)
}

func TestAdd_ConflictingRecord(t *testing.T) {
	t.Parallel()
	p := New()
	require.NoError(t, p.Add(file("x.proto", "x")))
	require.NoError(t, p.Add(file("x.proto", "x")))

	err := p.Add(file("x.proto", "y"))
	assert.ErrorIs(t, err, ErrConflictingDefinition)
}

func TestPublicDependencies(t *testing.T) {
	t.Parallel()
	files := shopFiles()
	reexport := file("shop/all.proto", "shop", "shop/money.proto", "shop/order.proto")
	reexport.PublicDependency = []int32{1}
	p := New(WithDatabase(newTestDatabase(t, append(files, reexport)...)))

	f, err := p.FindFileByName("shop/all.proto")
	require.NoError(t, err)
	require.Len(t, f.PublicDependencies, 1)
	assert.Equal(t, "shop/order.proto", f.PublicDependencies[0].Name)
}
