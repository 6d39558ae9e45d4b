package logio

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
)

// ErrInvalidHash is returned when an undefined manifest hash is
// dereferenced.
var ErrInvalidHash = errors.New("Invalid hash: undefined")

// Manifest is the stored form of a log: its identifier and its head
// hashes, sort-order descending.
type Manifest struct {
	ID    string
	Heads []cid.Cid
}

type wireManifest struct {
	ID    string   `json:"id" cbor:"id"`
	Heads []string `json:"heads" cbor:"heads"`
}

// WriteManifest stores the manifest under the modern codec and returns its
// content address.
func WriteManifest(ctx context.Context, store blockio.Store, m *Manifest) (cid.Cid, error) {
	w := wireManifest{ID: m.ID, Heads: make([]string, 0, len(m.Heads))}
	for _, h := range m.Heads {
		w.Heads = append(w.Heads, blockio.CIDString(h))
	}

	return blockio.WriteCBOR(ctx, store, w)
}

// ReadManifest fetches and decodes a manifest.
func ReadManifest(ctx context.Context, store blockio.Store, hash cid.Cid) (*Manifest, error) {
	if !hash.Defined() {
		return nil, ErrInvalidHash
	}

	var w wireManifest
	if err := blockio.ReadCBOR(ctx, store, hash, &w); err != nil {
		return nil, err
	}

	m := &Manifest{ID: w.ID}
	for _, s := range w.Heads {
		c, err := blockio.ParseCID(s)
		if err != nil {
			return nil, fmt.Errorf("manifest head: %w", err)
		}
		m.Heads = append(m.Heads, c)
	}

	return m, nil
}

// FromMultihash hydrates a log from a manifest hash: the manifest names
// the heads, the heads anchor the entry fetch.
func FromMultihash(ctx context.Context, store blockio.Store, hash cid.Cid, opts *FetchOptions) (*Snapshot, error) {
	manifest, err := ReadManifest(ctx, store, hash)
	if err != nil {
		return nil, err
	}

	values, err := FetchAll(ctx, store, manifest.Heads, opts)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		LogID:  manifest.ID,
		Heads:  manifest.Heads,
		Values: values,
	}, nil
}

// FromEntryHash hydrates the entries reachable from the given hashes.
func FromEntryHash(ctx context.Context, store blockio.Store, hashes []cid.Cid, opts *FetchOptions) ([]*entry.Entry, error) {
	for _, h := range hashes {
		if !h.Defined() {
			return nil, ErrInvalidHash
		}
	}

	return FetchAll(ctx, store, hashes, opts)
}

// FromEntry hydrates a log from materialized source entries: everything
// reachable from them is fetched and merged with the sources themselves.
func FromEntry(ctx context.Context, store blockio.Store, sourceEntries []*entry.Entry, opts *FetchOptions) (*Snapshot, error) {
	var hashes []cid.Cid
	var logID string
	var heads []cid.Cid

	for _, e := range sourceEntries {
		if !entry.IsEntry(e) {
			return nil, errors.New("'sourceEntries' argument must be an array of Entry instances")
		}
		hashes = append(hashes, e.Hash)
		heads = append(heads, e.Hash)
		logID = e.LogID
	}

	values, err := FetchAll(ctx, store, hashes, opts)
	if err != nil {
		return nil, err
	}

	// sources whose blocks the store lacks still belong to the result
	fetched := make(map[string]struct{}, len(values))
	for _, e := range values {
		fetched[e.Hash.KeyString()] = struct{}{}
	}
	for _, e := range sourceEntries {
		if _, ok := fetched[e.Hash.KeyString()]; !ok {
			fetched[e.Hash.KeyString()] = struct{}{}
			values = append(values, e)
		}
	}

	return &Snapshot{
		LogID:  logID,
		Heads:  heads,
		Values: values,
	}, nil
}

// FromJSON hydrates a log from a manifest value (rather than a manifest
// hash).
func FromJSON(ctx context.Context, store blockio.Store, manifest *Manifest, opts *FetchOptions) (*Snapshot, error) {
	if manifest == nil {
		return nil, errors.New("Log instance not defined")
	}

	values, err := FetchAll(ctx, store, manifest.Heads, opts)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		LogID:  manifest.ID,
		Heads:  manifest.Heads,
		Values: values,
	}, nil
}
