package ouroboroslog

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/logio"
)

func TestToJSONManifest(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	e, err := l.Append(ctx, []byte("hello"), nil)
	require.NoError(t, err)

	manifest, err := l.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, "A", manifest.ID)
	require.Len(t, manifest.Heads, 1)
	assert.True(t, manifest.Heads[0].Equals(e.Hash))
}

func TestMultihashRoundTripLog(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	for _, p := range []string{"one", "two", "three"} {
		_, err := l.Append(ctx, []byte(p), nil)
		require.NoError(t, err)
	}

	hash, err := l.ToMultihash(ctx)
	require.NoError(t, err)

	restored, err := NewFromMultihash(ctx, store, ident, hash, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, l.ID(), restored.ID())
	assert.Equal(t, l.Length(), restored.Length())
	assert.Equal(t, valueStrings(t, l), valueStrings(t, restored))
	assert.Equal(t, headHashes(t, l), headHashes(t, restored))
}

func TestManifestIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	_, err := l.Append(ctx, []byte("one"), nil)
	require.NoError(t, err)

	a, err := l.ToMultihash(ctx)
	require.NoError(t, err)
	b, err := l.ToMultihash(ctx)
	require.NoError(t, err)
	assert.True(t, a.Equals(b))
}

func TestNewFromEntryHash(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	for _, p := range []string{"one", "two", "three"} {
		_, err := l.Append(ctx, []byte(p), nil)
		require.NoError(t, err)
	}

	heads, err := l.Heads()
	require.NoError(t, err)
	require.Len(t, heads, 1)

	restored, err := NewFromEntryHash(ctx, store, ident, heads[0].Hash, &LogOptions{ID: "A"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "A", restored.ID())
	assert.Equal(t, valueStrings(t, l), valueStrings(t, restored))
}

func TestNewFromEntry(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	for _, p := range []string{"one", "two", "three"} {
		_, err := l.Append(ctx, []byte(p), nil)
		require.NoError(t, err)
	}

	heads, err := l.Heads()
	require.NoError(t, err)

	restored, err := NewFromEntry(ctx, store, ident, heads, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, valueStrings(t, l), valueStrings(t, restored))
}

func TestNewFromJSON(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	for _, p := range []string{"one", "two"} {
		_, err := l.Append(ctx, []byte(p), nil)
		require.NoError(t, err)
	}

	manifest, err := l.ToJSON()
	require.NoError(t, err)

	restored, err := NewFromJSON(ctx, store, ident, manifest, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, valueStrings(t, l), valueStrings(t, restored))
}

func TestNewFromMultihashWithLengthBound(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	for _, p := range []string{"one", "two", "three", "four"} {
		_, err := l.Append(ctx, []byte(p), nil)
		require.NoError(t, err)
	}

	hash, err := l.ToMultihash(ctx)
	require.NoError(t, err)

	restored, err := NewFromMultihash(ctx, store, ident, hash, nil, &logio.FetchOptions{Length: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Length())
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	for _, p := range []string{"one", "two", "three"} {
		_, err := l.Append(ctx, []byte(p), nil)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, l.SaveSnapshot(&buf))

	// restoring must not need the original blocks
	empty := blockio.NewMemoryStore()
	restored, err := LoadSnapshot(&buf, empty, ident, nil)
	require.NoError(t, err)

	assert.Equal(t, l.ID(), restored.ID())
	assert.Equal(t, l.Length(), restored.Length())
	assert.Equal(t, valueStrings(t, l), valueStrings(t, restored))
	assert.Equal(t, headHashes(t, l), headHashes(t, restored))
}

func TestSnapshotEntriesStillVerify(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := newTestIdentity(t, "userA")
	l := newTestLog(t, store, ident, "A")

	_, err := l.Append(ctx, []byte("signed"), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, l.SaveSnapshot(&buf))

	restored, err := LoadSnapshot(&buf, blockio.NewMemoryStore(), ident, nil)
	require.NoError(t, err)

	values, err := restored.Values()
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.NoError(t, entry.Verify(ident.Provider, values[0]))
}
