// Package reflectdb serves raw file schema records from a running gRPC
// server through the server reflection service.
package reflectdb

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	reflectpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

const defaultTimeout = 10 * time.Second

// Database asks a reflection server for files by name or by symbol. Every
// file a response carries, dependencies included, is cached, so later
// lookups of those names do not touch the network.
type Database struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	log     logrus.FieldLogger

	mu    sync.Mutex
	files map[string]*descriptorpb.FileDescriptorProto
}

// Option configures a Database.
type Option func(*Database)

// WithTimeout bounds each reflection round trip.
func WithTimeout(d time.Duration) Option {
	return func(db *Database) {
		db.timeout = d
	}
}

// WithLogger sets the logger for reflection requests.
func WithLogger(l logrus.FieldLogger) Option {
	return func(db *Database) {
		db.log = l
	}
}

// New creates a Database over conn.
func New(conn grpc.ClientConnInterface, opts ...Option) *Database {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	db := &Database{
		conn:    conn,
		timeout: defaultTimeout,
		log:     discard,
		files:   make(map[string]*descriptorpb.FileDescriptorProto),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// FindFileByName returns the named file, or nil if the server does not know
// it.
func (db *Database) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	db.mu.Lock()
	fd, ok := db.files[name]
	db.mu.Unlock()
	if ok {
		return fd, nil
	}

	fds, err := db.request(&reflectpb.ServerReflectionRequest{
		MessageRequest: &reflectpb.ServerReflectionRequest_FileByFilename{FileByFilename: name},
	})
	if err != nil || fds == nil {
		return nil, err
	}
	for _, fd := range fds {
		if fd.GetName() == name {
			return fd, nil
		}
	}
	return fds[0], nil
}

// FindFileContainingSymbol returns the file declaring symbol, or nil if the
// server does not know it.
func (db *Database) FindFileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error) {
	fds, err := db.request(&reflectpb.ServerReflectionRequest{
		MessageRequest: &reflectpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: symbol},
	})
	if err != nil || fds == nil {
		return nil, err
	}
	return fds[0], nil
}

// Services lists the fully-qualified names of the services the server
// exposes.
func (db *Database) Services(ctx context.Context) ([]string, error) {
	resp, err := db.roundTrip(ctx, &reflectpb.ServerReflectionRequest{
		MessageRequest: &reflectpb.ServerReflectionRequest_ListServices{},
	})
	if err != nil {
		return nil, err
	}
	list := resp.GetListServicesResponse()
	if list == nil {
		return nil, fmt.Errorf("reflection: list services: unexpected response")
	}
	names := make([]string, 0, len(list.GetService()))
	for _, s := range list.GetService() {
		names = append(names, s.GetName())
	}
	return names, nil
}

// Files returns the names of every file needed to describe the services the
// server exposes, dependencies included, sorted.
func (db *Database) Files() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()
	services, err := db.Services(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var queue []*descriptorpb.FileDescriptorProto
	for _, svc := range services {
		fd, err := db.FindFileContainingSymbol(svc)
		if err != nil {
			return nil, err
		}
		if fd != nil && !seen[fd.GetName()] {
			seen[fd.GetName()] = true
			queue = append(queue, fd)
		}
	}

	var names []string
	for len(queue) > 0 {
		fd := queue[0]
		queue = queue[1:]
		names = append(names, fd.GetName())
		for _, dep := range fd.GetDependency() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			depFd, err := db.FindFileByName(dep)
			if err != nil {
				return nil, err
			}
			if depFd != nil {
				queue = append(queue, depFd)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// request performs a lookup and decodes every file in the reply, the
// answer first. A NotFound reply yields nil and no error.
func (db *Database) request(req *reflectpb.ServerReflectionRequest) ([]*descriptorpb.FileDescriptorProto, error) {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()

	resp, err := db.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if e := resp.GetErrorResponse(); e != nil {
		if codes.Code(e.GetErrorCode()) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reflection: %s: %s", codes.Code(e.GetErrorCode()), e.GetErrorMessage())
	}
	fdResp := resp.GetFileDescriptorResponse()
	if fdResp == nil || len(fdResp.GetFileDescriptorProto()) == 0 {
		return nil, fmt.Errorf("reflection: unexpected response")
	}

	fds := make([]*descriptorpb.FileDescriptorProto, 0, len(fdResp.GetFileDescriptorProto()))
	for _, raw := range fdResp.GetFileDescriptorProto() {
		fd := &descriptorpb.FileDescriptorProto{}
		if err := proto.Unmarshal(raw, fd); err != nil {
			return nil, fmt.Errorf("reflection: decode file: %w", err)
		}
		fds = append(fds, fd)
	}

	db.mu.Lock()
	for _, fd := range fds {
		if _, ok := db.files[fd.GetName()]; !ok {
			db.files[fd.GetName()] = fd
		}
	}
	db.mu.Unlock()
	db.log.WithField("files", len(fds)).Debug("reflection response")
	return fds, nil
}

func (db *Database) roundTrip(ctx context.Context, req *reflectpb.ServerReflectionRequest) (*reflectpb.ServerReflectionResponse, error) {
	client := reflectpb.NewServerReflectionClient(db.conn)
	stream, err := client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("reflection: open stream: %w", err)
	}
	defer stream.CloseSend()
	resp, err := sendReceive(stream, req)
	if err != nil {
		return nil, fmt.Errorf("reflection: %w", err)
	}
	return resp, nil
}

// sendReceiver is the part of the reflection stream a lookup needs.
type sendReceiver interface {
	Send(*reflectpb.ServerReflectionRequest) error
	Recv() (*reflectpb.ServerReflectionResponse, error)
}

func sendReceive(client sendReceiver, req *reflectpb.ServerReflectionRequest) (*reflectpb.ServerReflectionResponse, error) {
	if err := client.Send(req); err != nil {
		return nil, fmt.Errorf("can't send request: %w", err)
	}
	resp, err := client.Recv()
	if err != nil {
		return nil, fmt.Errorf("can't receive response: %w", err)
	}
	return resp, nil
}
