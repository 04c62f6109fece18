package protosrc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/protopool/internal/symbols"
)

func scanKinds(t *testing.T, src string) map[string]symbols.Kind {
	t.Helper()
	sc := NewScanner()
	defer sc.Close()
	syms, err := sc.Scan(context.Background(), []byte(src))
	require.NoError(t, err)
	out := make(map[string]symbols.Kind, len(syms))
	for _, s := range syms {
		out[s.Name] = s.Kind
	}
	return out
}

func TestScan_TopLevelDeclarations(t *testing.T) {
	t.Parallel()
	got := scanKinds(t, `
syntax = "proto3";
package shop.v1;

message Order {
  string id = 1;
}

enum Status {
  STATUS_OPEN = 0;
  STATUS_CLOSED = 1;
}

service Orders {
  rpc Place(Order) returns (Order);
  rpc Watch(Order) returns (stream Order);
}
`)
	assert.Equal(t, symbols.Message, got["shop.v1.Order"])
	assert.Equal(t, symbols.Enum, got["shop.v1.Status"])
	assert.Equal(t, symbols.EnumValue, got["shop.v1.STATUS_OPEN"])
	assert.Equal(t, symbols.EnumValue, got["shop.v1.STATUS_CLOSED"])
	assert.Equal(t, symbols.Service, got["shop.v1.Orders"])
	assert.Equal(t, symbols.Method, got["shop.v1.Orders.Place"])
	assert.Equal(t, symbols.Method, got["shop.v1.Orders.Watch"])
	assert.NotContains(t, got, "shop.v1.Order.id", "fields are not indexed")
}

func TestScan_NestedDeclarations(t *testing.T) {
	t.Parallel()
	got := scanKinds(t, `
syntax = "proto3";
package shop;

message Order {
  message Line {
    string sku = 1;
  }
  enum Kind {
    KIND_UNKNOWN = 0;
  }
  Line line = 1;
}
`)
	assert.Equal(t, symbols.Message, got["shop.Order"])
	assert.Equal(t, symbols.Message, got["shop.Order.Line"])
	assert.Equal(t, symbols.Enum, got["shop.Order.Kind"])
	assert.Equal(t, symbols.EnumValue, got["shop.Order.KIND_UNKNOWN"])
}

func TestScan_Proto2IsUnparsed(t *testing.T) {
	t.Parallel()
	sc := NewScanner()
	defer sc.Close()

	syms, err := sc.Scan(context.Background(), []byte(proto2Order))
	assert.ErrorIs(t, err, ErrUnparsed)
	assert.Empty(t, syms)
}

func TestScan_NoPackage(t *testing.T) {
	t.Parallel()
	got := scanKinds(t, `syntax = "proto3"; message Bare {}`)
	assert.Equal(t, symbols.Message, got["Bare"])
}
