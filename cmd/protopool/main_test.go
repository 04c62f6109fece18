package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "sub", "deep")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

// ===========================================================================
// Config
// ===========================================================================

// newFlags mirrors the root command's persistent flags.
func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("format", "json", "")
	flags.String("config", "", "")
	flags.String("log-level", "warn", "")
	flags.String("log-format", "text", "")
	flags.StringSlice("proto-path", nil, "")
	flags.String("reflect-addr", "", "")
	flags.Int("workers", 0, "")
	return flags
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	path := filepath.Join(root, defaultConfigPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()
	c, err := loadConfig(newFlags(), t.TempDir(), env(nil))
	require.NoError(t, err)
	assert.Equal(t, "json", c.Format.String)
	assert.Equal(t, "warn", c.LogLevel.String)
	assert.Equal(t, "text", c.LogFormat.String)
	assert.False(t, c.DB.Valid)
	assert.Nil(t, c.protoPaths())
}

func TestLoadConfig_Layering(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, `
db: from-file.db
proto_paths: [protos, third_party]
log_level: info
format: text
workers: 2
`)

	tests := []struct {
		name    string
		env     map[string]string
		flags   []string
		wantDB  string
		wantLvl string
		paths   []string
		workers int64
	}{
		{
			name:    "file only",
			wantDB:  "from-file.db",
			wantLvl: "info",
			paths:   []string{"protos", "third_party"},
			workers: 2,
		},
		{
			name:    "env overrides file",
			env:     map[string]string{"PROTOPOOL_DB": "from-env.db", "PROTOPOOL_PROTO_PATHS": "a, b", "PROTOPOOL_WORKERS": "4"},
			wantDB:  "from-env.db",
			wantLvl: "info",
			paths:   []string{"a", "b"},
			workers: 4,
		},
		{
			name:    "flags override env",
			env:     map[string]string{"PROTOPOOL_DB": "from-env.db", "PROTOPOOL_LOG_LEVEL": "error"},
			flags:   []string{"--db", "from-flag.db", "--proto-path", "x", "--proto-path", "y"},
			wantDB:  "from-flag.db",
			wantLvl: "error",
			paths:   []string{"x", "y"},
			workers: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := newFlags()
			require.NoError(t, flags.Parse(tt.flags))
			c, err := loadConfig(flags, root, env(tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.wantDB, c.DB.String)
			assert.Equal(t, tt.wantLvl, c.LogLevel.String)
			assert.Equal(t, tt.paths, c.protoPaths())
			assert.Equal(t, tt.workers, c.Workers.Int64)
			assert.Equal(t, "text", c.Format.String)
		})
	}
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	t.Parallel()
	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	_, err := loadConfig(flags, t.TempDir(), env(nil))
	assert.ErrorContains(t, err, "reading config")
}

func TestLoadConfig_InvalidFormat(t *testing.T) {
	t.Parallel()
	_, err := loadConfig(newFlags(), t.TempDir(), env(map[string]string{"PROTOPOOL_FORMAT": "xml"}))
	assert.ErrorContains(t, err, `invalid format "xml"`)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, "db: [unterminated")
	_, err := loadConfig(newFlags(), root, env(nil))
	assert.ErrorContains(t, err, "parsing config")
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()
	l := logrus.New()
	require.NoError(t, setupLogger(l, Config{
		LogLevel:  defaultConfig().LogLevel,
		LogFormat: defaultConfig().LogFormat,
	}))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	c := defaultConfig()
	c.LogFormat.String = "json"
	require.NoError(t, setupLogger(l, c))
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	c.LogLevel.String = "loud"
	assert.Error(t, setupLogger(l, c))
}

// ===========================================================================
// Describe
// ===========================================================================

func newDescribePool(t *testing.T) *protopool.Pool {
	t.Helper()
	p := protopool.New()
	require.NoError(t, p.Add(&descriptorpb.FileDescriptorProto{
		Name:    proto.String("shop.proto"),
		Package: proto.String("shop"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Order"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:   proto.String("id"),
					Number: proto.Int32(1),
					Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
				},
				{
					Name:       proto.String("email"),
					Number:     proto.Int32(2),
					Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:       descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
					OneofIndex: proto.Int32(0),
				},
			},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("contact")}},
		}},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Status"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("OPEN"), Number: proto.Int32(0)},
			},
		}},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Orders"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:            proto.String("Watch"),
				InputType:       proto.String(".shop.Order"),
				OutputType:      proto.String(".shop.Order"),
				ServerStreaming: proto.Bool(true),
			}},
		}},
	}))
	return p
}

func TestDescribe_Kinds(t *testing.T) {
	t.Parallel()
	p := newDescribePool(t)

	tests := []struct {
		name string
		kind string
	}{
		{"shop.proto", "file"},
		{"shop.Order", "message"},
		{".shop.Order", "message"},
		{"shop.Status", "enum"},
		{"shop.Orders", "service"},
		{"shop.Order.id", "field"},
		{"shop.Order.contact", "oneof"},
	}
	for _, tt := range tests {
		d, err := describe(p, tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.kind, d.Kind, tt.name)
		assert.Equal(t, "shop.proto", d.File, tt.name)
	}
}

func TestDescribe_MessageDetail(t *testing.T) {
	t.Parallel()
	d, err := describe(newDescribePool(t), "shop.Order")
	require.NoError(t, err)

	m, ok := d.Detail.(CLIMessage)
	require.True(t, ok)
	require.Len(t, m.Fields, 2)
	assert.Equal(t, "string", m.Fields[0].Type)
	assert.Equal(t, "", m.Fields[0].Default)
	assert.Equal(t, "contact", m.Fields[1].Oneof)
	assert.Equal(t, []CLIOneof{{Name: "contact", Fields: []string{"email"}}}, m.Oneofs)

	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: d}))
	assert.Contains(t, buf.String(), "message shop.Order")
	assert.Contains(t, buf.String(), "Oneof contact: email")
}

func TestDescribe_ServiceText(t *testing.T) {
	t.Parallel()
	d, err := describe(newDescribePool(t), "shop.Orders")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: d}))
	assert.Contains(t, buf.String(), "rpc Watch(shop.Order) returns (stream shop.Order)")
}

func TestDescribe_NotFound(t *testing.T) {
	t.Parallel()
	_, err := describe(newDescribePool(t), "shop.Missing")
	assert.True(t, errors.Is(err, protopool.ErrNotFound))
}

// ===========================================================================
// Output helpers
// ===========================================================================

func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	flagLimit, flagOffset = 2, 1
	t.Cleanup(func() { flagLimit, flagOffset = 50, 0 })

	assert.Equal(t, []int{1, 2}, paginate(items))
	flagOffset = 4
	assert.Equal(t, []int{4}, paginate(items))
	flagOffset = 9
	assert.Nil(t, paginate(items))
}

func TestOutputResultText_Footer(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{
		Results:    []CLIFile{{ID: 1, Name: "a.proto", Package: "shop", Syntax: "proto3"}},
		TotalCount: intPtr(3),
	}))
	out := buf.String()
	assert.Contains(t, out, "a.proto")
	assert.Contains(t, out, "Showing 1 of 3 results")
}

func TestPickSource(t *testing.T) {
	flagFrom = ""
	t.Cleanup(func() { flagFrom = "" })

	_, _, err := pickSource(&sources{})
	assert.ErrorContains(t, err, "no source configured")

	flagFrom = "reflect"
	_, _, err = pickSource(&sources{})
	assert.ErrorContains(t, err, "--reflect-addr")

	flagFrom = "carrier-pigeon"
	_, _, err = pickSource(&sources{})
	assert.ErrorContains(t, err, "invalid source")
}
