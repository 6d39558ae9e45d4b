package ouroboroslog

import (
	"context"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/logio"
	"github.com/i5heu/ouroboros-log/pkg/sorting"
)

// Snapshot is the full materialized state of a log: identifier, heads and
// every value.
type Snapshot struct {
	ID     string
	Heads  []*entry.Entry
	Values []*entry.Entry
}

// ToJSON returns the log manifest: its ID and head hashes, sort-order
// descending.
func (l *Log) ToJSON() (*logio.Manifest, error) {
	heads, err := l.Heads()
	if err != nil {
		return nil, err
	}

	hashes := make([]cid.Cid, 0, len(heads))
	for _, h := range heads {
		hashes = append(hashes, h.Hash)
	}

	return &logio.Manifest{ID: l.id, Heads: hashes}, nil
}

// ToMultihash stores the log manifest and returns its content address.
// The entries themselves are already in the store.
func (l *Log) ToMultihash(ctx context.Context) (cid.Cid, error) {
	manifest, err := l.ToJSON()
	if err != nil {
		return cid.Undef, err
	}
	return logio.WriteManifest(ctx, l.storage, manifest)
}

// ToSnapshot exports the materialized log state.
func (l *Log) ToSnapshot() (*Snapshot, error) {
	l.lock.RLock()
	heads := l.headsIndex.Slice()
	l.lock.RUnlock()

	values, err := l.Values()
	if err != nil {
		return nil, err
	}

	return &Snapshot{ID: l.id, Heads: heads, Values: values}, nil
}

// ToString renders the log newest-first as an indented tree. payloadMapper
// may be nil; the payload is then printed as text.
func (l *Log) ToString(payloadMapper func(*entry.Entry) string) (string, error) {
	values, err := l.Values()
	if err != nil {
		return "", err
	}
	sorting.Reverse(values)

	var lines []string
	for _, e := range values {
		children := entry.FindChildren(e, values)
		padding := strings.Repeat("  ", max(len(children)-1, 0))
		if len(children) > 0 {
			padding += "└─"
		}

		payload := ""
		if payloadMapper != nil {
			payload = payloadMapper(e)
		} else {
			payload = string(e.Payload)
		}

		lines = append(lines, padding+payload)
	}

	return strings.Join(lines, "\n"), nil
}

// NewFromMultihash reconstructs a log from a stored manifest hash,
// fetching the reachable entries from the store.
func NewFromMultihash(ctx context.Context, store blockio.Store, ident *identity.Identity, hash cid.Cid, logOptions *LogOptions, fetchOptions *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if logOptions == nil {
		logOptions = &LogOptions{}
	}

	data, err := logio.FromMultihash(ctx, store, hash, fetchOptions)
	if err != nil {
		return nil, err
	}

	entries := entry.NewOrderedMapFromEntries(data.Values)
	var heads []*entry.Entry
	for _, h := range data.Heads {
		if head, ok := entries.Get(h.KeyString()); ok {
			heads = append(heads, head)
		}
	}

	return NewLog(store, ident, &LogOptions{
		ID:               data.LogID,
		AccessController: logOptions.AccessController,
		SortFn:           logOptions.SortFn,
		Entries:          data.Values,
		Heads:            heads,
		Concurrency:      logOptions.Concurrency,
	})
}

// NewFromEntryHash reconstructs a log from a single entry hash.
func NewFromEntryHash(ctx context.Context, store blockio.Store, ident *identity.Identity, hash cid.Cid, logOptions *LogOptions, fetchOptions *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if logOptions == nil {
		logOptions = &LogOptions{}
	}

	entries, err := logio.FromEntryHash(ctx, store, []cid.Cid{hash}, fetchOptions)
	if err != nil {
		return nil, err
	}

	return NewLog(store, ident, &LogOptions{
		ID:               logOptions.ID,
		AccessController: logOptions.AccessController,
		SortFn:           logOptions.SortFn,
		Entries:          entries,
		Concurrency:      logOptions.Concurrency,
	})
}

// NewFromEntry reconstructs a log from materialized source entries,
// fetching their ancestry from the store.
func NewFromEntry(ctx context.Context, store blockio.Store, ident *identity.Identity, sourceEntries []*entry.Entry, logOptions *LogOptions, fetchOptions *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if logOptions == nil {
		logOptions = &LogOptions{}
	}

	data, err := logio.FromEntry(ctx, store, sourceEntries, fetchOptions)
	if err != nil {
		return nil, err
	}

	return NewLog(store, ident, &LogOptions{
		ID:               data.LogID,
		AccessController: logOptions.AccessController,
		SortFn:           logOptions.SortFn,
		Entries:          data.Values,
		Concurrency:      logOptions.Concurrency,
	})
}

// NewFromJSON reconstructs a log from a manifest value, fetching the
// reachable entries from the store.
func NewFromJSON(ctx context.Context, store blockio.Store, ident *identity.Identity, manifest *logio.Manifest, logOptions *LogOptions, fetchOptions *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if logOptions == nil {
		logOptions = &LogOptions{}
	}

	data, err := logio.FromJSON(ctx, store, manifest, fetchOptions)
	if err != nil {
		return nil, err
	}

	return NewLog(store, ident, &LogOptions{
		ID:               data.LogID,
		AccessController: logOptions.AccessController,
		SortFn:           logOptions.SortFn,
		Entries:          data.Values,
		Concurrency:      logOptions.Concurrency,
	})
}
