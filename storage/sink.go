package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arloliu/tachyon/block"
)

// BlockSink receives sealed blocks for persistence. The engine calls Persist
// outside all storage locks, after the block has been sealed and detached
// from its series, so implementations are free to perform blocking I/O.
//
// The durability substrate behind the sink (WAL, object storage, local
// files) is the collaborator's concern; a sink receives the sealed block,
// whose serialized form (Block.Serialize) is defined by the block package.
type BlockSink interface {
	Persist(ctx context.Context, blk *block.Block) error
}

// NopSink discards sealed blocks. It is the default when no sink is
// configured.
type NopSink struct{}

// Persist implements BlockSink by doing nothing.
func (NopSink) Persist(_ context.Context, _ *block.Block) error {
	return nil
}

// FileSink writes each sealed block's serialized form to a file named
// <block-id>.blk inside its directory, the ID written as 16 zero-padded
// hexadecimal digits.
type FileSink struct {
	dir string
}

var _ BlockSink = (*FileSink)(nil)

// NewFileSink creates the directory if needed and returns a sink writing into
// it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create block directory: %w", err)
	}

	return &FileSink{dir: dir}, nil
}

// Persist serializes the block and writes it to disk.
func (s *FileSink) Persist(_ context.Context, blk *block.Block) error {
	data, err := blk.Serialize()
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%016x.blk", blk.ID()))

	return os.WriteFile(path, data, 0o644)
}
