package entry

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
)

// The wire structs fix the fields of the serialized entry and their JSON
// order: hash, id, payload, next, refs, v, clock, key, identity, sig. The
// deterministic CBOR of v1 blocks orders the keys by its own canonical
// rule instead. The hash field is always null in serialized form; the
// address lives outside the block. Signing JSON-encodes the same struct
// with sig absent.

type wireClock struct {
	ID   string `json:"id" cbor:"id"`
	Time int    `json:"time" cbor:"time"`
}

type wireSignatures struct {
	ID        string `json:"id" cbor:"id"`
	PublicKey string `json:"publicKey" cbor:"publicKey"`
}

type wireIdentity struct {
	ID         string         `json:"id" cbor:"id"`
	PublicKey  string         `json:"publicKey" cbor:"publicKey"`
	Signatures wireSignatures `json:"signatures" cbor:"signatures"`
	Type       string         `json:"type" cbor:"type"`
}

type wireEntry struct {
	Hash     interface{}   `json:"hash" cbor:"hash"`
	ID       string        `json:"id" cbor:"id"`
	Payload  string        `json:"payload" cbor:"payload"`
	Next     []string      `json:"next" cbor:"next"`
	Refs     []string      `json:"refs" cbor:"refs"`
	V        uint64        `json:"v" cbor:"v"`
	Clock    wireClock     `json:"clock" cbor:"clock"`
	Key      string        `json:"key" cbor:"key"`
	Identity *wireIdentity `json:"identity" cbor:"identity"`
	Sig      string        `json:"sig,omitempty" cbor:"sig,omitempty"`
}

// wireEntryV0 is the historical format: no refs, no identity descriptor.
type wireEntryV0 struct {
	Hash    interface{} `json:"hash"`
	ID      string      `json:"id"`
	Payload string      `json:"payload"`
	Next    []string    `json:"next"`
	V       uint64      `json:"v"`
	Clock   wireClock   `json:"clock"`
	Key     string      `json:"key"`
	Sig     string      `json:"sig,omitempty"`
}

func cidStrings(cids []cid.Cid) []string {
	out := make([]string, 0, len(cids))
	for _, c := range cids {
		out = append(out, blockio.CIDString(c))
	}
	return out
}

func parseCIDs(strs []string) ([]cid.Cid, error) {
	out := make([]cid.Cid, 0, len(strs))
	for _, s := range strs {
		c, err := blockio.ParseCID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func toWireIdentity(i *identity.Identity) *wireIdentity {
	if i == nil {
		return nil
	}
	return &wireIdentity{
		ID:        i.ID,
		PublicKey: i.PublicKey,
		Signatures: wireSignatures{
			ID:        i.Signatures.ID,
			PublicKey: i.Signatures.PublicKey,
		},
		Type: i.Type,
	}
}

func fromWireIdentity(w *wireIdentity) *identity.Identity {
	if w == nil {
		return nil
	}
	return &identity.Identity{
		ID:        w.ID,
		PublicKey: w.PublicKey,
		Signatures: identity.Signatures{
			ID:        w.Signatures.ID,
			PublicKey: w.Signatures.PublicKey,
		},
		Type: w.Type,
	}
}

// toWire builds the canonical serialized form. The signature is included
// when withSig is true (hashing) and absent otherwise (signing).
func (e *Entry) toWire(withSig bool) *wireEntry {
	w := &wireEntry{
		Hash:     nil,
		ID:       e.LogID,
		Payload:  string(e.Payload),
		Next:     cidStrings(e.Next),
		Refs:     cidStrings(e.Refs),
		V:        e.V,
		Clock:    wireClock{ID: e.Clock.ID, Time: e.Clock.Time},
		Key:      e.Key,
		Identity: toWireIdentity(e.Identity),
	}
	if withSig {
		w.Sig = e.Sig
	}
	return w
}

func (e *Entry) toWireV0(withSig bool) *wireEntryV0 {
	w := &wireEntryV0{
		Hash:    nil,
		ID:      e.LogID,
		Payload: string(e.Payload),
		Next:    cidStrings(e.Next),
		V:       e.V,
		Clock:   wireClock{ID: e.Clock.ID, Time: e.Clock.Time},
		Key:     e.Key,
	}
	if withSig {
		w.Sig = e.Sig
	}
	return w
}

// SigningBytes returns the canonical bytes the signature covers: the
// serialized entry with hash and sig absent, in the entry's own wire
// version.
func (e *Entry) SigningBytes() ([]byte, error) {
	var payload interface{}
	if e.V == 0 {
		payload = e.toWireV0(false)
	} else {
		payload = e.toWire(false)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode entry for signing: %w", err)
	}
	return data, nil
}

func fromWire(w *wireEntry) (*Entry, error) {
	next, err := parseCIDs(w.Next)
	if err != nil {
		return nil, err
	}
	refs, err := parseCIDs(w.Refs)
	if err != nil {
		return nil, err
	}

	return &Entry{
		LogID:    w.ID,
		Payload:  []byte(w.Payload),
		Next:     next,
		Refs:     refs,
		V:        w.V,
		Clock:    lamport.New(w.Clock.ID, w.Clock.Time),
		Key:      w.Key,
		Identity: fromWireIdentity(w.Identity),
		Sig:      w.Sig,
	}, nil
}

func fromWireV0(w *wireEntryV0) (*Entry, error) {
	next, err := parseCIDs(w.Next)
	if err != nil {
		return nil, err
	}

	// the legacy format carried only the raw key; surface it as the
	// identity's public key so access checks see one shape
	ident := &identity.Identity{PublicKey: w.Key}

	return &Entry{
		LogID:    w.ID,
		Payload:  []byte(w.Payload),
		Next:     next,
		V:        w.V,
		Clock:    lamport.New(w.Clock.ID, w.Clock.Time),
		Key:      w.Key,
		Identity: ident,
		Sig:      w.Sig,
	}, nil
}

// MarshalJSON renders the canonical form, signature included. Used for
// diagnostics and as the block content of v0 entries.
func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.V == 0 {
		return json.Marshal(e.toWireV0(true))
	}
	return json.Marshal(e.toWire(true))
}

// MarshalJSONWithHash renders the canonical form with the content address
// included. Snapshots use this; the canonical hashed form never carries
// the address.
func (e *Entry) MarshalJSONWithHash() ([]byte, error) {
	if e.V == 0 {
		w := e.toWireV0(true)
		w.Hash = blockio.CIDString(e.Hash)
		return json.Marshal(w)
	}
	w := e.toWire(true)
	w.Hash = blockio.CIDString(e.Hash)
	return json.Marshal(w)
}

// UnmarshalJSON accepts both wire versions. A hash field, when present as
// a string, is attached as the content address; the canonical form leaves
// it null and the caller attaches the address instead.
func (e *Entry) UnmarshalJSON(data []byte) error {
	// sniff version, hash and the shape of next before committing to a
	// wire struct
	var probe struct {
		V    uint64          `json:"v"`
		Hash *string         `json:"hash"`
		Next json.RawMessage `json:"next"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}
	if len(probe.Next) > 0 && probe.Next[0] != '[' && string(probe.Next) != "null" {
		return ErrNextNotArray
	}

	var decoded *Entry
	if probe.V == 0 {
		var w wireEntryV0
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode v0 entry: %w", err)
		}
		var err error
		decoded, err = fromWireV0(&w)
		if err != nil {
			return err
		}
	} else {
		var w wireEntry
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		var err error
		decoded, err = fromWire(&w)
		if err != nil {
			return err
		}
	}

	if probe.Hash != nil && *probe.Hash != "" {
		c, err := blockio.ParseCID(*probe.Hash)
		if err != nil {
			return err
		}
		decoded.Hash = c
	}

	*e = *decoded
	return nil
}

func stable(entries []*Entry, less func(a, b *Entry) bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}
