package entry

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
)

// FindHeads returns the entries no other entry references as a causal
// parent. The result is ordered by writer ID, ties broken by hash, so that
// two replicas with the same content present the same heads.
func FindHeads(entries *OrderedMap) []*Entry {
	if entries == nil {
		return nil
	}

	parents := mapset.NewThreadUnsafeSet[string]()
	for _, e := range entries.Slice() {
		for _, n := range e.Next {
			parents.Add(n.KeyString())
		}
	}

	var heads []*Entry
	for _, e := range entries.Slice() {
		if !parents.Contains(e.Hash.KeyString()) {
			heads = append(heads, e)
		}
	}

	stable(heads, func(a, b *Entry) bool {
		if d := strings.Compare(a.Clock.ID, b.Clock.ID); d != 0 {
			return d < 0
		}
		return strings.Compare(blockio.CIDString(a.Hash), blockio.CIDString(b.Hash)) < 0
	})

	return heads
}

// FindTails returns the entries at the boundary of a partial log: entries
// with no parents at all, or with at least one parent missing from the
// set. Ordered by the default entry order.
func FindTails(entries []*Entry) []*Entry {
	present := mapset.NewThreadUnsafeSet[string]()
	for _, e := range entries {
		present.Add(e.Hash.KeyString())
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var tails []*Entry

	for _, e := range entries {
		if seen.Contains(e.Hash.KeyString()) {
			continue
		}

		isTail := len(e.Next) == 0
		for _, n := range e.Next {
			if !present.Contains(n.KeyString()) {
				isTail = true
				break
			}
		}

		if isTail {
			seen.Add(e.Hash.KeyString())
			tails = append(tails, e)
		}
	}

	stable(tails, func(a, b *Entry) bool {
		return Compare(a, b) < 0
	})

	return tails
}

// FindTailHashes returns the parent hashes referenced by the set but not
// present in it, walking the entries last-to-first and keeping the first
// observation of each hash.
func FindTailHashes(entries []*Entry) []string {
	present := mapset.NewThreadUnsafeSet[string]()
	for _, e := range entries {
		present.Add(e.Hash.KeyString())
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var tailHashes []string

	for i := len(entries) - 1; i >= 0; i-- {
		for _, n := range entries[i].Next {
			key := n.KeyString()
			if present.Contains(key) || seen.Contains(key) {
				continue
			}
			seen.Add(key)
			tailHashes = append(tailHashes, blockio.CIDString(n))
		}
	}

	return tailHashes
}
