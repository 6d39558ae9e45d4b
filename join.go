package ouroboroslog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
	"github.com/i5heu/ouroboros-log/pkg/workerpool"
)

// Join merges another log with the same ID into this one. Every new entry
// is checked against the access controller and its signature and content
// address are verified before any state changes; a single failure aborts
// the join and leaves the receiver untouched. Joining a log with a
// different ID is a no-op.
//
// Join is commutative, associative and idempotent with respect to the
// resulting indices and head set.
func (l *Log) Join(ctx context.Context, other *Log) (*Log, error) {
	if other == nil {
		return nil, ErrLogNotDefined
	}
	if other.entryIndex == nil || other.hashIndex == nil {
		return nil, ErrNotALog
	}

	if l.id != other.id {
		return l, nil
	}

	diff, err := Difference(ctx, other, l)
	if err != nil {
		return nil, fmt.Errorf("join failed: %w", err)
	}

	// verify everything first; the log must not change on failure
	pool := workerpool.New(workerpool.Config{WorkerCount: l.concurrency})
	defer pool.Close()

	room := pool.CreateRoom(ctx, l.concurrency)
	for _, k := range diff.Keys() {
		e := diff.UnsafeGet(k)
		room.Go(func(ctx context.Context) error {
			if e == nil {
				return ErrNotALog
			}
			if err := l.access.CanAppend(e, l.identity.Provider); err != nil {
				return fmt.Errorf("Could not append entry, key %q is not allowed to write to the log", authorID(e))
			}
			return entry.Verify(l.identity.Provider, e)
		})
	}
	if err := room.Wait(); err != nil {
		return nil, err
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	nextsFromNewItems := make(map[string]struct{})
	for _, k := range diff.Keys() {
		e := diff.UnsafeGet(k)
		key := e.Hash.KeyString()

		l.hashIndex.Set(key, e.Next)
		l.entryIndex.Set(key, e)
		for _, n := range e.Next {
			l.nextsIndex[n.KeyString()] = key
			nextsFromNewItems[n.KeyString()] = struct{}{}
		}
	}

	// recompute heads over the union, dropping anything that became a
	// parent
	candidates := entry.FindHeads(l.headsIndex.Merge(other.headsIndex))
	var heads []*entry.Entry
	for _, h := range candidates {
		key := h.Hash.KeyString()
		if _, ok := nextsFromNewItems[key]; ok {
			continue
		}
		if _, ok := l.nextsIndex[key]; ok {
			continue
		}
		heads = append(heads, h)
	}
	l.headsIndex = entry.NewOrderedMapFromEntries(heads)

	l.clock = lamport.New(l.clock.ID, maxClockTime(heads, l.clock.Time))

	return l, nil
}

// Difference collects the entries from knows and into does not, in from's
// insertion order. Hashes from knows but has not materialized are fetched
// from its store; a hash whose block went missing is skipped, the log is
// partial there.
func Difference(ctx context.Context, from, into *Log) (*entry.OrderedMap, error) {
	res := entry.NewOrderedMap()
	if from == nil || into == nil {
		return res, nil
	}

	for _, key := range from.hashIndexKeys() {
		if into.hashIndexHas(key) {
			continue
		}

		e, err := from.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		if e == nil || e.LogID != into.id {
			continue
		}

		res.Set(key, e)
	}

	return res, nil
}

// authorID names an entry's author for error messages; legacy entries
// only carry the raw key.
func authorID(e *entry.Entry) string {
	if e.Identity != nil && e.Identity.ID != "" {
		return e.Identity.ID
	}
	return e.Key
}

func (l *Log) hashIndexHas(key string) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.hashIndex.Has(key)
}

func (l *Log) hashIndexKeys() []string {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.hashIndex.Keys()
}

// resolve returns a materialized entry for a hash key, fetching it from
// the log's store when only the hash is known. A hash whose block is
// missing resolves to nil: the log is partial there.
func (l *Log) resolve(ctx context.Context, key string) (*entry.Entry, error) {
	if e, ok := l.entryIndex.Get(key); ok {
		return e, nil
	}

	c, err := cid.Cast([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("invalid hash key: %w", err)
	}

	e, err := entry.FromMultihash(ctx, l.storage, c)
	if err != nil {
		if errors.Is(err, blockio.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}
