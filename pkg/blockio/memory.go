package blockio

import (
	"context"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// MemoryStore keeps blocks in a map. It is the store used by the tests and
// by short-lived tooling; everything is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	pins   map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[string][]byte),
		pins:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) Put(ctx context.Context, block blocks.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := block.Cid().KeyString()
	data := make([]byte, len(block.RawData()))
	copy(data, block.RawData())
	m.blocks[key] = data

	return nil
}

func (m *MemoryStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.blocks[c.KeyString()]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	return blocks.NewBlockWithCid(data, c)
}

func (m *MemoryStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.blocks[c.KeyString()]
	m.mu.RUnlock()

	return ok, nil
}

func (m *MemoryStore) Pin(ctx context.Context, c cid.Cid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.pins[c.KeyString()] = struct{}{}
	m.mu.Unlock()

	return nil
}

// Pinned reports whether a block has been pinned.
func (m *MemoryStore) Pinned(c cid.Cid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.pins[c.KeyString()]
	return ok
}

// Len returns the number of stored blocks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.blocks)
}

var _ Store = (*MemoryStore)(nil)
