package entry

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
)

func newTestIdentity(tb testing.TB, id string) *identity.Identity {
	tb.Helper()

	provider := identity.NewEd25519Provider()
	ident, err := provider.CreateIdentity(id)
	if err != nil {
		tb.Fatalf("create identity: %v", err)
	}
	return ident
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	_, err := Create(ctx, nil, ident, &Entry{LogID: "A", Payload: []byte("x")}, nil)
	assert.EqualError(t, err, "Ipfs instance not defined")

	_, err = Create(ctx, store, nil, &Entry{LogID: "A", Payload: []byte("x")}, nil)
	assert.EqualError(t, err, "Identity is required, cannot create entry")

	_, err = Create(ctx, store, ident, &Entry{Payload: []byte("x")}, nil)
	assert.EqualError(t, err, "Entry requires an id")

	_, err = Create(ctx, store, ident, &Entry{LogID: "A"}, nil)
	assert.EqualError(t, err, "Entry requires data")
}

func TestCreateFillsDefaults(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	e, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("hello")}, nil)
	require.NoError(t, err)

	assert.True(t, e.Hash.Defined())
	assert.EqualValues(t, CurrentVersion, e.V)
	assert.Equal(t, ident.PublicKey, e.Key)
	assert.Equal(t, ident.PublicKey, e.Clock.ID)
	assert.Equal(t, 0, e.Clock.Time)
	assert.NotEmpty(t, e.Sig)
	require.NotNil(t, e.Identity)
	assert.Nil(t, e.Identity.Provider, "embedded identity must not carry the provider")
	assert.True(t, IsEntry(e))
}

func TestCreateIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	a, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("hello")}, nil)
	require.NoError(t, err)
	b, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("hello")}, nil)
	require.NoError(t, err)
	other, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("hello world")}, nil)
	require.NoError(t, err)

	assert.True(t, a.Hash.Equals(b.Hash), "same inputs must produce the same address")
	assert.False(t, a.Hash.Equals(other.Hash))
}

func TestCreateDeduplicatesNext(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	parent, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("one")}, nil)
	require.NoError(t, err)

	child, err := Create(ctx, store, ident, &Entry{
		LogID:   "A",
		Payload: []byte("two"),
		Next:    []cid.Cid{parent.Hash, cid.Undef, parent.Hash},
		Clock:   lamport.New(ident.PublicKey, 1),
	}, nil)
	require.NoError(t, err)

	require.Len(t, child.Next, 1)
	assert.True(t, child.Next[0].Equals(parent.Hash))
	assert.True(t, IsParent(parent, child))
}

func TestCreatePins(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	e, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("keep")}, &CreateOptions{Pin: true})
	require.NoError(t, err)
	assert.True(t, store.Pinned(e.Hash))
}

func TestMultihashRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	parent, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("one")}, nil)
	require.NoError(t, err)

	e, err := Create(ctx, store, ident, &Entry{
		LogID:   "A",
		Payload: []byte("two"),
		Next:    []cid.Cid{parent.Hash},
		Refs:    []cid.Cid{parent.Hash},
		Clock:   lamport.New(ident.PublicKey, 1),
	}, nil)
	require.NoError(t, err)

	got, err := FromMultihash(ctx, store, e.Hash)
	require.NoError(t, err)

	assert.Equal(t, e.LogID, got.LogID)
	assert.Equal(t, e.Payload, got.Payload)
	assert.Equal(t, e.Clock, got.Clock)
	assert.Equal(t, e.Key, got.Key)
	assert.Equal(t, e.Sig, got.Sig)
	assert.True(t, e.Hash.Equals(got.Hash))
	require.Len(t, got.Next, 1)
	assert.True(t, got.Next[0].Equals(parent.Hash))
	require.NotNil(t, got.Identity)
	assert.Equal(t, ident.PublicKey, got.Identity.PublicKey)
}

func TestFromMultihashUndefined(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()

	_, err := FromMultihash(ctx, store, cid.Undef)
	assert.EqualError(t, err, "Invalid hash: undefined")
}

func TestToMultihashInvalidFormat(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()

	_, err := ToMultihash(ctx, store, &Entry{LogID: "A"}, false)
	assert.EqualError(t, err, "Invalid object format, cannot generate entry hash")
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	e, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("hello")}, nil)
	require.NoError(t, err)

	require.NoError(t, Verify(ident.Provider, e))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	e, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("hello")}, nil)
	require.NoError(t, err)

	tampered := e.Copy()
	tampered.Payload = []byte("evil")

	err = Verify(ident.Provider, tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not validate signature")
}

func TestVerifyRejectsSwappedHash(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	a, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("one")}, nil)
	require.NoError(t, err)
	b, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("two")}, nil)
	require.NoError(t, err)

	// valid signature, wrong address
	forged := a.Copy()
	forged.Hash = b.Hash

	err = Verify(ident.Provider, forged)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match its content")
}

func TestIsEntryClassification(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	e, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("x")}, nil)
	require.NoError(t, err)
	assert.True(t, IsEntry(e))

	assert.False(t, IsEntry(nil))
	assert.False(t, IsEntry(&Entry{}))

	noHash := e.Copy()
	noHash.Hash = cid.Undef
	assert.False(t, IsEntry(noHash))
}

func TestIsEqual(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	a, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("one")}, nil)
	require.NoError(t, err)
	b, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("two")}, nil)
	require.NoError(t, err)

	assert.True(t, IsEqual(a, a.Copy()))
	assert.False(t, IsEqual(a, b))
	assert.False(t, IsEqual(a, nil))
}

func TestCompareOrdersByClockThenHash(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")

	early, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("early"), Clock: lamport.New("A", 1)}, nil)
	require.NoError(t, err)
	late, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("late"), Clock: lamport.New("A", 2)}, nil)
	require.NoError(t, err)

	assert.Negative(t, Compare(early, late))
	assert.Positive(t, Compare(late, early))
	assert.Zero(t, Compare(early, early))

	// same clock, distinct entries: hash decides, never zero
	twinA, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("twin a"), Clock: lamport.New("A", 5)}, nil)
	require.NoError(t, err)
	twinB, err := Create(ctx, store, ident, &Entry{LogID: "A", Payload: []byte("twin b"), Clock: lamport.New("A", 5)}, nil)
	require.NoError(t, err)
	assert.NotZero(t, Compare(twinA, twinB))
}
