package entry

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
)

// buildChain appends count entries in a straight line and returns them in
// append order.
func buildChain(tb testing.TB, store blockio.Store, logID string, count int) []*Entry {
	tb.Helper()
	ctx := context.Background()
	ident := newTestIdentity(tb, "userA")

	var chain []*Entry
	for i := 0; i < count; i++ {
		var next []cid.Cid
		if len(chain) > 0 {
			next = []cid.Cid{chain[len(chain)-1].Hash}
		}
		e, err := Create(ctx, store, ident, &Entry{
			LogID:   logID,
			Payload: []byte{byte('a' + i)},
			Next:    next,
			Clock:   lamport.New(ident.PublicKey, i+1),
		}, nil)
		if err != nil {
			tb.Fatalf("create entry %d: %v", i, err)
		}
		chain = append(chain, e)
	}

	return chain
}

func TestFindHeadsSingleChain(t *testing.T) {
	store := blockio.NewMemoryStore()
	chain := buildChain(t, store, "A", 3)

	heads := FindHeads(NewOrderedMapFromEntries(chain))
	require.Len(t, heads, 1)
	assert.True(t, heads[0].Hash.Equals(chain[2].Hash))
}

func TestFindHeadsForks(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	identA := newTestIdentity(t, "userA")
	identB := newTestIdentity(t, "userB")

	root, err := Create(ctx, store, identA, &Entry{LogID: "X", Payload: []byte("root"), Clock: lamport.New(identA.PublicKey, 1)}, nil)
	require.NoError(t, err)
	forkA, err := Create(ctx, store, identA, &Entry{LogID: "X", Payload: []byte("a"), Next: []cid.Cid{root.Hash}, Clock: lamport.New(identA.PublicKey, 2)}, nil)
	require.NoError(t, err)
	forkB, err := Create(ctx, store, identB, &Entry{LogID: "X", Payload: []byte("b"), Next: []cid.Cid{root.Hash}, Clock: lamport.New(identB.PublicKey, 2)}, nil)
	require.NoError(t, err)

	heads := FindHeads(NewOrderedMapFromEntries([]*Entry{root, forkA, forkB}))
	require.Len(t, heads, 2)

	// deterministic presentation: ascending clock ID
	wantFirst, wantSecond := forkA, forkB
	if identB.PublicKey < identA.PublicKey {
		wantFirst, wantSecond = forkB, forkA
	}
	assert.True(t, heads[0].Hash.Equals(wantFirst.Hash))
	assert.True(t, heads[1].Hash.Equals(wantSecond.Hash))
}

func TestFindTailsCompleteChain(t *testing.T) {
	store := blockio.NewMemoryStore()
	chain := buildChain(t, store, "A", 3)

	// a complete chain has exactly one tail: the root (empty next)
	tails := FindTails(chain)
	require.Len(t, tails, 1)
	assert.True(t, tails[0].Hash.Equals(chain[0].Hash))
}

func TestFindTailsPartialChain(t *testing.T) {
	store := blockio.NewMemoryStore()
	chain := buildChain(t, store, "A", 4)

	// drop the first two entries; the third references a missing parent
	partial := chain[2:]
	tails := FindTails(partial)
	require.Len(t, tails, 1)
	assert.True(t, tails[0].Hash.Equals(chain[2].Hash))
}

func TestFindTailHashes(t *testing.T) {
	store := blockio.NewMemoryStore()
	chain := buildChain(t, store, "A", 4)

	partial := chain[2:]
	hashes := FindTailHashes(partial)
	require.Len(t, hashes, 1)
	assert.Equal(t, blockio.CIDString(chain[1].Hash), hashes[0])

	// nothing missing, nothing reported
	assert.Empty(t, FindTailHashes(chain))
}

func TestFindChildren(t *testing.T) {
	store := blockio.NewMemoryStore()
	chain := buildChain(t, store, "A", 3)

	children := FindChildren(chain[0], chain)
	require.Len(t, children, 1)
	assert.True(t, children[0].Hash.Equals(chain[1].Hash))

	assert.Empty(t, FindChildren(chain[2], chain))
}

func TestOrderedMapKeepsInsertionOrder(t *testing.T) {
	store := blockio.NewMemoryStore()
	chain := buildChain(t, store, "A", 5)

	m := NewOrderedMap()
	for _, e := range chain {
		m.Set(e.Hash.KeyString(), e)
	}

	require.Equal(t, 5, m.Len())
	for i, e := range m.Slice() {
		assert.True(t, e.Hash.Equals(chain[i].Hash))
	}

	// re-setting a key keeps its position
	m.Set(chain[0].Hash.KeyString(), chain[0])
	assert.True(t, m.At(0).Hash.Equals(chain[0].Hash))

	// merge appends only unseen entries
	other := NewOrderedMapFromEntries(chain[3:])
	merged := m.Merge(other)
	assert.Equal(t, 5, merged.Len())
}
