// Package logio hydrates logs from the block store: manifest round-trips
// and bounded parallel BFS over entry DAGs. Hydration tolerates partial
// logs; a parent hash that resolves to no block marks a tail, not an
// error.
package logio

import (
	"context"
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/workerpool"
)

// DefaultConcurrency bounds parallel block fetches during hydration.
const DefaultConcurrency = 16

// ProgressFunc is called once per fetched entry with the BFS depth it was
// found at.
type ProgressFunc func(hash cid.Cid, e *entry.Entry, depth int)

// FetchOptions bound a hydration pass.
type FetchOptions struct {
	// Length caps the number of fetched entries; zero or negative means
	// all.
	Length int
	// Exclude holds entries already known to the caller; they are never
	// fetched again.
	Exclude []*entry.Entry
	// Timeout caps the wall-clock budget. On expiry the entries fetched
	// so far are returned without error.
	Timeout time.Duration
	// Concurrency bounds parallel fetches; zero means
	// DefaultConcurrency.
	Concurrency int
	// Progress, if set, observes every fetched entry.
	Progress ProgressFunc
}

func (o *FetchOptions) withDefaults() FetchOptions {
	out := FetchOptions{Length: -1, Concurrency: DefaultConcurrency}
	if o == nil {
		return out
	}

	if o.Length > 0 {
		out.Length = o.Length
	}
	out.Exclude = o.Exclude
	out.Timeout = o.Timeout
	out.Progress = o.Progress
	if o.Concurrency > 0 {
		out.Concurrency = o.Concurrency
	}
	return out
}

// Snapshot is the result of a hydration pass, ready to be absorbed by a
// log constructor.
type Snapshot struct {
	LogID  string
	Heads  []cid.Cid
	Values []*entry.Entry
}

// FetchAll walks the DAG breadth-first from the given hashes, fetching
// entries level by level with bounded parallelism. Entries arrive in BFS
// order; within one level, in frontier order.
func FetchAll(ctx context.Context, store blockio.Store, hashes []cid.Cid, opts *FetchOptions) ([]*entry.Entry, error) {
	o := opts.withDefaults()

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, e := range o.Exclude {
		if e != nil && e.Hash.Defined() {
			seen.Add(e.Hash.KeyString())
		}
	}

	pool := workerpool.New(workerpool.Config{WorkerCount: o.Concurrency})
	defer pool.Close()

	var result []*entry.Entry
	frontier := dedupeFrontier(hashes, seen)
	depth := 0

	for len(frontier) > 0 && (o.Length < 0 || len(result) < o.Length) {
		fetched := make([]*entry.Entry, len(frontier))

		room := pool.CreateRoom(ctx, o.Concurrency)
		for i, h := range frontier {
			i, h := i, h
			room.Go(func(ctx context.Context) error {
				e, err := entry.FromMultihash(ctx, store, h)
				if err != nil {
					// a missing block is a tail of a partial log
					if errors.Is(err, blockio.ErrNotFound) {
						return nil
					}
					return err
				}
				fetched[i] = e
				return nil
			})
		}

		err := room.Wait()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// budget exhausted: the set fetched so far is consistent
				return result, nil
			}
			return nil, err
		}

		var nextFrontier []cid.Cid
		for i, e := range fetched {
			if e == nil {
				continue
			}
			if o.Length >= 0 && len(result) >= o.Length {
				break
			}

			result = append(result, e)
			if o.Progress != nil {
				o.Progress(frontier[i], e, depth)
			}

			for _, parent := range append(append([]cid.Cid(nil), e.Next...), e.Refs...) {
				if !parent.Defined() || seen.Contains(parent.KeyString()) {
					continue
				}
				seen.Add(parent.KeyString())
				nextFrontier = append(nextFrontier, parent)
			}
		}

		frontier = nextFrontier
		depth++
	}

	return result, nil
}

func dedupeFrontier(hashes []cid.Cid, seen mapset.Set[string]) []cid.Cid {
	var out []cid.Cid
	for _, h := range hashes {
		if !h.Defined() || seen.Contains(h.KeyString()) {
			continue
		}
		seen.Add(h.KeyString())
		out = append(out, h)
	}
	return out
}
