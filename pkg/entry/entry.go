// Package entry implements the immutable records of the log: creation,
// canonical serialization, signing, content-addressing, verification and
// the DAG helpers that operate on sets of entries.
//
// Two wire versions exist. Version 1 is the current format and the only one
// new entries are written in. Version 0 is the historical format; it is
// decoded, verified and re-addressed bit-exactly, but never produced.
package entry

import (
	"bytes"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
)

// CurrentVersion is the wire version of newly created entries.
const CurrentVersion = 1

// Entry is one record in the log. Entries are value objects keyed by their
// content address; they never hold references to other entries, only
// hashes.
type Entry struct {
	// Hash is the content address of the canonical encoding. It is
	// computed, never serialized into the hashed payload itself.
	Hash cid.Cid
	// LogID names the log this entry belongs to.
	LogID string
	// Payload is the opaque user data.
	Payload []byte
	// Next holds the direct causal parents: the heads of the log at the
	// moment the entry was appended.
	Next []cid.Cid
	// Refs holds skip-list shortcuts to geometrically spaced ancestors.
	Refs []cid.Cid
	// V is the wire version.
	V uint64
	// Clock is the Lamport timestamp of the append.
	Clock lamport.Clock
	// Key is the author's hex-encoded public key.
	Key string
	// Identity is the author's identity descriptor.
	Identity *identity.Identity
	// Sig is the signature over the canonical encoding with hash and sig
	// absent.
	Sig string
}

// IsEntry reports whether e carries everything that makes it a log entry:
// id, payload, next, clock and a content address. Version 0 entries pass
// this check too.
func IsEntry(e *Entry) bool {
	if e == nil {
		return false
	}
	return e.LogID != "" &&
		e.Payload != nil &&
		e.Next != nil &&
		e.Hash.Defined() &&
		e.Clock.Defined()
}

// IsParent reports whether p is a direct causal parent of c.
func IsParent(p, c *Entry) bool {
	if p == nil || c == nil {
		return false
	}
	for _, n := range c.Next {
		if n.Equals(p.Hash) {
			return true
		}
	}
	return false
}

// IsEqual reports whether two entries share one content address.
func IsEqual(a, b *Entry) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Hash.Equals(b.Hash)
}

// Compare is the default total order over entries: Lamport clock first
// (time, then writer ID), content address as the terminal tiebreaker.
func Compare(a, b *Entry) int {
	if d := lamport.Compare(a.Clock, b.Clock); d != 0 {
		return d
	}
	return strings.Compare(blockio.CIDString(a.Hash), blockio.CIDString(b.Hash))
}

// Copy returns a deep copy of the entry.
func (e *Entry) Copy() *Entry {
	if e == nil {
		return nil
	}

	dup := &Entry{
		Hash:     e.Hash,
		LogID:    e.LogID,
		Payload:  bytes.Clone(e.Payload),
		Next:     append([]cid.Cid(nil), e.Next...),
		Refs:     append([]cid.Cid(nil), e.Refs...),
		V:        e.V,
		Clock:    e.Clock,
		Key:      e.Key,
		Identity: e.Identity.Filtered(),
		Sig:      e.Sig,
	}
	return dup
}

// FindChildren returns the entries in all that reference e as a causal
// parent, ordered by clock. It exists for rendering, not for log
// maintenance.
func FindChildren(e *Entry, all []*Entry) []*Entry {
	var children []*Entry
	for _, candidate := range all {
		if IsParent(e, candidate) {
			children = append(children, candidate)
		}
	}

	stable(children, func(a, b *Entry) bool {
		return lamport.Compare(a.Clock, b.Clock) < 0
	})

	return children
}
