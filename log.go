// Package ouroboroslog implements an append-only log CRDT on top of a
// content-addressable block store. Entries form a signed Merkle DAG; peers
// append locally, exchange entries by hash and join arbitrary subsets of a
// shared log into one deterministic, causally consistent order.
package ouroboroslog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/accesscontroller"
	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
	"github.com/i5heu/ouroboros-log/pkg/sorting"
)

var (
	// ErrIPFSNotDefined is returned when no block store was given.
	ErrIPFSNotDefined = errors.New("Ipfs instance not defined")
	// ErrIdentityRequired is returned when a log is created without an
	// identity.
	ErrIdentityRequired = errors.New("Identity is required")
	// ErrLogNotDefined is returned when a nil log is joined.
	ErrLogNotDefined = errors.New("Log instance not defined")
	// ErrNotALog is returned when the joined value was not built by
	// NewLog.
	ErrNotALog = errors.New("Given argument is not an instance of Log")
	// ErrEntriesNotValid is returned when seed entries are malformed.
	ErrEntriesNotValid = errors.New("'entries' argument must be an array of Entry instances")
	// ErrHeadsNotValid is returned when seed heads are malformed.
	ErrHeadsNotValid = errors.New("'heads' argument must be an array")
)

// DefaultJoinConcurrency bounds parallel verification during Join.
const DefaultJoinConcurrency = 16

// LogOptions configure a new log instance.
type LogOptions struct {
	// ID names the log; two logs only merge when their IDs match. An
	// empty ID is replaced with the current unix time.
	ID string
	// AccessController decides who may append; nil permits everyone.
	AccessController accesscontroller.Interface
	// SortFn is the total order used for heads and iteration output;
	// nil means LastWriteWins. The sort is always wrapped in the
	// NoZeroes guard.
	SortFn sorting.CompareFn
	// Entries seed the log with already-materialized entries.
	Entries []*entry.Entry
	// Heads override the computed head set of the seed entries.
	Heads []*entry.Entry
	// Clock seeds the Lamport clock; the time is raised to the seed
	// heads in any case.
	Clock *lamport.Clock
	// Concurrency bounds parallel verification during Join; zero means
	// DefaultJoinConcurrency.
	Concurrency int
}

// AppendOptions configure one append.
type AppendOptions struct {
	// PointerCount requests enough references for a reader to reach
	// roughly PointerCount ancestors from this entry alone. One means
	// plain causal links only.
	PointerCount int
	// Pin marks the new entry's block as retained in the store.
	Pin bool
}

// hashIndex is the insertion-ordered map hash -> next hashes. It is the
// canonical length counter: hashes can be known before their entries are
// fetched, so the index may be larger than the entry index.
type hashIndex struct {
	keys  []string
	nexts map[string][]cid.Cid
}

func newHashIndex() *hashIndex {
	return &hashIndex{nexts: make(map[string][]cid.Cid)}
}

func (h *hashIndex) Has(key string) bool {
	_, ok := h.nexts[key]
	return ok
}

func (h *hashIndex) Set(key string, next []cid.Cid) {
	if _, ok := h.nexts[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.nexts[key] = next
}

func (h *hashIndex) Keys() []string {
	return append([]string(nil), h.keys...)
}

func (h *hashIndex) Len() int {
	return len(h.keys)
}

// Log is one replica of the distributed log. A Log instance is not safe
// for concurrent mutation; callers serialize Append and Join themselves.
type Log struct {
	storage  blockio.Store
	id       string
	identity *identity.Identity
	access   accesscontroller.Interface
	sortFn   sorting.CompareFn

	clock       lamport.Clock
	entryIndex  *entry.OrderedMap
	headsIndex  *entry.OrderedMap
	nextsIndex  map[string]string
	hashIndex   *hashIndex
	concurrency int

	lock sync.RWMutex
}

// NewLog creates a log for the given identity, optionally seeded with
// materialized entries and heads.
func NewLog(store blockio.Store, ident *identity.Identity, options *LogOptions) (*Log, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if options == nil {
		options = &LogOptions{}
	}

	id := options.ID
	if id == "" {
		id = strconv.FormatInt(time.Now().Unix(), 10)
	}

	sortFn := options.SortFn
	if sortFn == nil {
		sortFn = sorting.LastWriteWins
	}
	sortFn = sorting.NoZeroes(sortFn)

	access := options.AccessController
	if access == nil {
		access = accesscontroller.Default{}
	}

	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultJoinConcurrency
	}

	entryIndex := entry.NewOrderedMap()
	for _, e := range options.Entries {
		if !entry.IsEntry(e) {
			return nil, ErrEntriesNotValid
		}
		entryIndex.Set(e.Hash.KeyString(), e)
	}

	heads := options.Heads
	for _, h := range heads {
		if h == nil {
			return nil, ErrHeadsNotValid
		}
	}
	if len(heads) == 0 && entryIndex.Len() > 0 {
		heads = entry.FindHeads(entryIndex)
	}

	maxTime := 0
	if options.Clock != nil {
		maxTime = options.Clock.Time
	}
	maxTime = maxClockTime(heads, maxTime)

	nextsIndex := make(map[string]string)
	hashes := newHashIndex()
	for _, e := range entryIndex.Slice() {
		hashes.Set(e.Hash.KeyString(), e.Next)
		for _, n := range e.Next {
			nextsIndex[n.KeyString()] = e.Hash.KeyString()
		}
	}

	return &Log{
		storage:     store,
		id:          id,
		identity:    ident,
		access:      access,
		sortFn:      sortFn,
		clock:       lamport.New(ident.PublicKey, maxTime),
		entryIndex:  entryIndex,
		headsIndex:  entry.NewOrderedMapFromEntries(heads),
		nextsIndex:  nextsIndex,
		hashIndex:   hashes,
		concurrency: concurrency,
	}, nil
}

func maxClockTime(entries []*entry.Entry, def int) int {
	max := def
	for _, e := range entries {
		if e != nil && e.Clock.Time > max {
			max = e.Clock.Time
		}
	}
	return max
}

// ID returns the log identifier.
func (l *Log) ID() string {
	return l.id
}

// Clock returns the current Lamport clock.
func (l *Log) Clock() lamport.Clock {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.clock
}

// Length returns the number of entries this instance knows of, fetched or
// not.
func (l *Log) Length() int {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.hashIndex.Len()
}

// Get returns a materialized entry by hash.
func (l *Log) Get(c cid.Cid) (*entry.Entry, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.entryIndex.Get(c.KeyString())
}

// Has reports whether the log knows the hash, materialized or not.
func (l *Log) Has(c cid.Cid) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.hashIndex.Has(c.KeyString())
}

// Append signs and stores a new entry carrying payload and makes it the
// log's single head.
func (l *Log) Append(ctx context.Context, payload []byte, opts *AppendOptions) (*entry.Entry, error) {
	if opts == nil {
		opts = &AppendOptions{}
	}
	pointerCount := opts.PointerCount
	if pointerCount < 1 {
		pointerCount = 1
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	heads := l.currentHeads()

	// advance the clock past every known head
	newTime := maxClockTime(heads, l.clock.Time) + 1
	l.clock = lamport.New(l.clock.ID, newTime)

	// walk back far enough to pick skip-list references
	amount := pointerCount
	if len(heads) > amount {
		amount = len(heads)
	}
	all, err := l.traverse(heads, amount, "")
	if err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}

	refs := referenceHashes(all, pointerCount)

	next := make([]cid.Cid, 0, len(heads))
	for _, h := range heads {
		next = append(next, h.Hash)
	}

	// causal parents win over shortcuts
	refs = subtractCIDs(refs, next)

	e, err := entry.Create(ctx, l.storage, l.identity, &entry.Entry{
		LogID:   l.id,
		Payload: payload,
		Next:    next,
		Refs:    refs,
		Clock:   l.clock,
	}, &entry.CreateOptions{Pin: opts.Pin})
	if err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}

	if err := l.access.CanAppend(e, l.identity.Provider); err != nil {
		return nil, fmt.Errorf("Could not append entry, key %q is not allowed to write to the log", l.identity.ID)
	}

	key := e.Hash.KeyString()
	l.entryIndex.Set(key, e)
	for _, p := range next {
		l.nextsIndex[p.KeyString()] = key
	}
	l.headsIndex = entry.NewOrderedMapFromEntries([]*entry.Entry{e})
	l.hashIndex.Set(key, e.Next)

	return e, nil
}

// referenceHashes picks entries at power-of-two distances from the heads,
// deepest entry included when the log is shorter than requested.
func referenceHashes(all *entry.OrderedMap, pointerCount int) []cid.Cid {
	limit := pointerCount
	if all.Len() < limit {
		limit = all.Len()
	}

	var refs []cid.Cid
	for i := 1; i <= limit; i *= 2 {
		idx := i - 1
		if idx > all.Len()-1 {
			idx = all.Len() - 1
		}
		if e := all.At(idx); e != nil {
			refs = append(refs, e.Hash)
		}
	}

	if all.Len() < pointerCount {
		if e := all.At(all.Len() - 1); e != nil {
			refs = append(refs, e.Hash)
		}
	}

	return dedupe(refs)
}

func dedupe(cids []cid.Cid) []cid.Cid {
	seen := make(map[string]struct{}, len(cids))
	out := make([]cid.Cid, 0, len(cids))
	for _, c := range cids {
		if _, ok := seen[c.KeyString()]; ok {
			continue
		}
		seen[c.KeyString()] = struct{}{}
		out = append(out, c)
	}
	return out
}

func subtractCIDs(from, remove []cid.Cid) []cid.Cid {
	drop := make(map[string]struct{}, len(remove))
	for _, c := range remove {
		drop[c.KeyString()] = struct{}{}
	}

	out := make([]cid.Cid, 0, len(from))
	for _, c := range from {
		if _, ok := drop[c.KeyString()]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// currentHeads returns the head entries without locking; callers hold the
// lock.
func (l *Log) currentHeads() []*entry.Entry {
	return l.headsIndex.Slice()
}

// Heads returns the current heads, sort-order descending.
func (l *Log) Heads() ([]*entry.Entry, error) {
	l.lock.RLock()
	heads := l.headsIndex.Slice()
	l.lock.RUnlock()

	if err := sorting.Sort(l.sortFn, heads); err != nil {
		return nil, err
	}
	sorting.Reverse(heads)

	return heads, nil
}

// Values returns every reachable entry in the log's total order,
// ascending.
func (l *Log) Values() ([]*entry.Entry, error) {
	l.lock.RLock()
	heads := l.headsIndex.Slice()
	l.lock.RUnlock()

	if len(heads) == 0 {
		return nil, nil
	}

	result, err := l.traverse(heads, -1, "")
	if err != nil {
		return nil, err
	}

	values := result.Slice()
	sorting.Reverse(values)

	return values, nil
}

// Tails returns the entries at the boundary of this partial replica.
func (l *Log) Tails() ([]*entry.Entry, error) {
	values, err := l.Values()
	if err != nil {
		return nil, err
	}
	return entry.FindTails(values), nil
}

// TailHashes returns the parent hashes this replica references but does
// not hold.
func (l *Log) TailHashes() ([]string, error) {
	values, err := l.Values()
	if err != nil {
		return nil, err
	}
	return entry.FindTailHashes(values), nil
}
