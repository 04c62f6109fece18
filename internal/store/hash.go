package store

import (
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ComputeFileHash hashes the deterministic encoding of fd. Two records hash
// equal exactly when they encode identically, so reimporting an unchanged
// file can be skipped.
func ComputeFileHash(fd *descriptorpb.FileDescriptorProto) (string, []byte, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(fd)
	if err != nil {
		return "", nil, fmt.Errorf("encode %q: %w", fd.GetName(), err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), data, nil
}
