package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"photodb/internal/photodb"
)

type storedSnapshot struct {
	data    []byte
	version int64
}

// MemoryVault holds snapshots in memory. It backs the "memory" backup type
// and tests; it is safe for concurrent use.
type MemoryVault struct {
	name string

	mu        sync.RWMutex
	snapshots map[string]storedSnapshot
}

func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, snapshots: make(map[string]storedSnapshot)}
}

func (m *MemoryVault) PutSnapshot(ctx context.Context, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", name, err)
	}
	if int64(len(data)) != size {
		return sizeMismatch(size, int64(len(data)))
	}

	m.mu.Lock()
	m.snapshots[name] = storedSnapshot{data: data, version: version}
	m.mu.Unlock()
	return nil
}

func (m *MemoryVault) GetSnapshot(ctx context.Context, name string, w io.Writer) error {
	m.mu.RLock()
	s, ok := m.snapshots[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	_, err := io.Copy(w, bytes.NewReader(s.data))
	return err
}

func (m *MemoryVault) SnapshotVersion(ctx context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[name].version, nil
}

func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ photodb.Vault = (*MemoryVault)(nil)
