package store

import (
	"fmt"
	"time"
)

// CommitBatch writes every buffered record in batch within a single
// transaction, skipping records whose stored hash already matches. It
// returns the names of files that changed and empties the batch on success.
func (s *Store) CommitBatch(batch *Batch) ([]string, error) {
	files := batch.Files()
	if len(files) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var changed []string
	for _, fd := range files {
		hash, data, err := ComputeFileHash(fd)
		if err != nil {
			return nil, fmt.Errorf("commit batch: %w", err)
		}
		ok, err := putFileTx(tx, fd, hash, data, now)
		if err != nil {
			return nil, fmt.Errorf("commit batch: file %q: %w", fd.GetName(), err)
		}
		if ok {
			changed = append(changed, fd.GetName())
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: commit: %w", err)
	}
	batch.reset()
	return changed, nil
}
