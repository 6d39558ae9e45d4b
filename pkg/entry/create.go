package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
)

var (
	// ErrIPFSNotDefined is returned when no block store was given.
	ErrIPFSNotDefined = errors.New("Ipfs instance not defined")
	// ErrIdentityRequired is returned when an entry is created without an
	// identity.
	ErrIdentityRequired = errors.New("Identity is required, cannot create entry")
	// ErrIDRequired is returned when an entry is created without a log ID.
	ErrIDRequired = errors.New("Entry requires an id")
	// ErrPayloadRequired is returned when an entry is created without data.
	ErrPayloadRequired = errors.New("Entry requires data")
	// ErrNextNotArray is returned when the next field of a serialized
	// entry is not a sequence.
	ErrNextNotArray = errors.New("'next' argument is not an array")
	// ErrInvalidHash is returned when an undefined hash is dereferenced.
	ErrInvalidHash = errors.New("Invalid hash: undefined")
	// ErrInvalidFormat is returned when an entry misses required fields.
	ErrInvalidFormat = errors.New("Invalid object format, cannot generate entry hash")
)

// CreateOptions control side effects of entry creation.
type CreateOptions struct {
	// Pin marks the stored block as retained.
	Pin bool
}

// Create signs and stores a new version-1 entry. The template carries the
// log ID, the payload, the causal parents, the clock and the skip-list
// references; everything else is filled in here. The returned entry has its
// content address attached.
func Create(ctx context.Context, store blockio.Store, ident *identity.Identity, template *Entry, opts *CreateOptions) (*Entry, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if template == nil || template.LogID == "" {
		return nil, ErrIDRequired
	}
	if template.Payload == nil {
		return nil, ErrPayloadRequired
	}
	if opts == nil {
		opts = &CreateOptions{}
	}

	clock := template.Clock
	if !clock.Defined() {
		clock = lamport.New(ident.PublicKey, 0)
	}

	e := &Entry{
		LogID:    template.LogID,
		Payload:  template.Payload,
		Next:     dedupeCIDs(template.Next),
		Refs:     dedupeCIDs(template.Refs),
		V:        CurrentVersion,
		Clock:    clock,
		Key:      ident.PublicKey,
		Identity: ident.Filtered(),
	}

	signingBytes, err := e.SigningBytes()
	if err != nil {
		return nil, err
	}

	if ident.Provider == nil {
		return nil, ErrIdentityRequired
	}
	sig, err := ident.Provider.Sign(ident, signingBytes)
	if err != nil {
		return nil, fmt.Errorf("sign entry: %w", err)
	}
	e.Sig = sig

	hash, err := ToMultihash(ctx, store, e, opts.Pin)
	if err != nil {
		return nil, err
	}
	e.Hash = hash

	return e, nil
}

// dedupeCIDs drops undefined hashes and duplicates, keeping first-observed
// order.
func dedupeCIDs(cids []cid.Cid) []cid.Cid {
	out := make([]cid.Cid, 0, len(cids))
	seen := make(map[string]struct{}, len(cids))

	for _, c := range cids {
		if !c.Defined() {
			continue
		}
		key := c.KeyString()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	return out
}

// ToMultihash serializes the canonical (signed) form, writes it to the
// store and returns the content address. The entry itself is not mutated.
func ToMultihash(ctx context.Context, store blockio.Store, e *Entry, pin bool) (cid.Cid, error) {
	if store == nil {
		return cid.Undef, ErrIPFSNotDefined
	}
	if e == nil || e.LogID == "" || e.Payload == nil || !e.Clock.Defined() {
		return cid.Undef, ErrInvalidFormat
	}

	var hash cid.Cid
	var err error

	if e.V == 0 {
		// legacy entries keep their historical codec and address
		var jsonData []byte
		jsonData, err = e.MarshalJSON()
		if err != nil {
			return cid.Undef, err
		}
		hash, err = blockio.WriteLegacy(ctx, store, jsonData)
	} else {
		hash, err = blockio.WriteCBOR(ctx, store, e.toWire(true))
	}
	if err != nil {
		return cid.Undef, err
	}

	if pin {
		if err := store.Pin(ctx, hash); err != nil {
			return cid.Undef, fmt.Errorf("pin entry %s: %w", blockio.CIDString(hash), err)
		}
	}

	return hash, nil
}

// FromMultihash fetches an entry by content address and decodes it
// according to the codec the address names.
func FromMultihash(ctx context.Context, store blockio.Store, hash cid.Cid) (*Entry, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if !hash.Defined() {
		return nil, ErrInvalidHash
	}

	var e *Entry

	if hash.Prefix().Codec == cid.DagProtobuf {
		jsonData, err := blockio.ReadLegacy(ctx, store, hash)
		if err != nil {
			return nil, err
		}
		var w wireEntryV0
		if err := json.Unmarshal(jsonData, &w); err != nil {
			return nil, fmt.Errorf("decode v0 entry %s: %w", blockio.CIDString(hash), err)
		}
		e, err = fromWireV0(&w)
		if err != nil {
			return nil, err
		}
	} else {
		var w wireEntry
		if err := blockio.ReadCBOR(ctx, store, hash, &w); err != nil {
			return nil, err
		}
		var err error
		e, err = fromWire(&w)
		if err != nil {
			return nil, err
		}
	}

	e.Hash = hash
	return e, nil
}

// Verify checks the signature and the content address of an entry.
func Verify(provider identity.Provider, e *Entry) error {
	if e == nil {
		return ErrInvalidFormat
	}
	if provider == nil {
		return errors.New("Identity-provider is required, cannot verify entry")
	}
	if e.Sig == "" {
		return fmt.Errorf("no signature on entry %s", blockio.CIDString(e.Hash))
	}

	signingBytes, err := e.SigningBytes()
	if err != nil {
		return err
	}

	if err := provider.Verify(e.Sig, e.Key, signingBytes); err != nil {
		return fmt.Errorf("Could not validate signature %q for entry %q and key %q",
			e.Sig, blockio.CIDString(e.Hash), e.Key)
	}

	// the address must match the canonical encoding too, otherwise the
	// entry content was swapped after signing
	expected, err := contentAddress(e)
	if err != nil {
		return err
	}
	if e.Hash.Defined() && !e.Hash.Equals(expected) {
		return fmt.Errorf("entry hash %s does not match its content (%s)",
			blockio.CIDString(e.Hash), blockio.CIDString(expected))
	}

	return nil
}

// contentAddress recomputes the address without touching the store.
func contentAddress(e *Entry) (cid.Cid, error) {
	if e.V == 0 {
		jsonData, err := e.MarshalJSON()
		if err != nil {
			return cid.Undef, err
		}
		return blockio.CIDForLegacy(jsonData)
	}

	data, err := blockio.MarshalCanonical(e.toWire(true))
	if err != nil {
		return cid.Undef, err
	}
	return blockio.CIDForCBOR(data)
}
