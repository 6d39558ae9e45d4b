// Package blockio reads and writes log records as content-addressed blocks.
//
// Two codecs exist. The modern codec serializes values as deterministic
// CBOR and addresses them with a CIDv1 (dag-cbor, sha2-256), rendered in
// base58btc. The legacy codec frames pre-encoded JSON in a protobuf node
// and addresses it with a CIDv0, which keeps the historical base58
// addresses of old entries stable. The legacy codec is read and written
// only for records that already exist in that format; new records always
// use the modern codec.
package blockio

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNotFound is returned by stores when no block exists for a CID.
var ErrNotFound = errors.New("block not found")

// Store is the content-addressable substrate the log runs on. The store
// must be safe for concurrent use; the log layers no locking on top of it.
type Store interface {
	Put(ctx context.Context, block blocks.Block) error
	Get(ctx context.Context, c cid.Cid) (blocks.Block, error)
	Has(ctx context.Context, c cid.Cid) (bool, error)
	// Pin marks a block as retained. Stores without retention semantics
	// may treat this as a no-op.
	Pin(ctx context.Context, c cid.Cid) error
}

var detMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	detMode = em
}

// MarshalCanonical encodes value with the deterministic CBOR mode used for
// all modern blocks. Identical values always produce identical bytes.
func MarshalCanonical(value interface{}) ([]byte, error) {
	data, err := detMode.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return data, nil
}

// CIDForCBOR computes the modern content address for canonical CBOR bytes.
func CIDForCBOR(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash block: %w", err)
	}
	return cid.NewCidV1(cid.DagCBOR, mh), nil
}

// WriteCBOR canonical-encodes value, stores it and returns its address.
func WriteCBOR(ctx context.Context, s Store, value interface{}) (cid.Cid, error) {
	data, err := MarshalCanonical(value)
	if err != nil {
		return cid.Undef, err
	}

	c, err := CIDForCBOR(data)
	if err != nil {
		return cid.Undef, err
	}

	block, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return cid.Undef, fmt.Errorf("build block: %w", err)
	}

	if err := s.Put(ctx, block); err != nil {
		return cid.Undef, fmt.Errorf("store block %s: %w", CIDString(c), err)
	}

	return c, nil
}

// ReadCBOR fetches a modern block and decodes it into out.
func ReadCBOR(ctx context.Context, s Store, c cid.Cid, out interface{}) error {
	block, err := s.Get(ctx, c)
	if err != nil {
		return fmt.Errorf("fetch block %s: %w", CIDString(c), err)
	}

	if err := cbor.Unmarshal(block.RawData(), out); err != nil {
		return fmt.Errorf("decode block %s: %w", CIDString(c), err)
	}

	return nil
}

// legacyDataField is the protobuf field number holding the payload of a
// legacy node.
const legacyDataField = 1

// FrameLegacy wraps pre-encoded JSON bytes into the legacy protobuf node.
func FrameLegacy(jsonData []byte) []byte {
	buf := protowire.AppendTag(nil, legacyDataField, protowire.BytesType)
	return protowire.AppendBytes(buf, jsonData)
}

// LegacyPayload unwraps the payload from a legacy protobuf node.
func LegacyPayload(blockData []byte) ([]byte, error) {
	rest := blockData
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("legacy node: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		if num == legacyDataField && typ == protowire.BytesType {
			data, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("legacy node data: %w", protowire.ParseError(n))
			}
			return data, nil
		}

		n = protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return nil, fmt.Errorf("legacy node field %d: %w", num, protowire.ParseError(n))
		}
		rest = rest[n:]
	}

	return nil, errors.New("legacy node has no data field")
}

// CIDForLegacy computes the legacy content address for JSON bytes.
func CIDForLegacy(jsonData []byte) (cid.Cid, error) {
	framed := FrameLegacy(jsonData)
	mh, err := multihash.Sum(framed, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash legacy block: %w", err)
	}
	return cid.NewCidV0(mh), nil
}

// WriteLegacy frames JSON bytes as a legacy node, stores it and returns
// its CIDv0 address.
func WriteLegacy(ctx context.Context, s Store, jsonData []byte) (cid.Cid, error) {
	framed := FrameLegacy(jsonData)

	c, err := CIDForLegacy(jsonData)
	if err != nil {
		return cid.Undef, err
	}

	block, err := blocks.NewBlockWithCid(framed, c)
	if err != nil {
		return cid.Undef, fmt.Errorf("build legacy block: %w", err)
	}

	if err := s.Put(ctx, block); err != nil {
		return cid.Undef, fmt.Errorf("store legacy block %s: %w", CIDString(c), err)
	}

	return c, nil
}

// ReadLegacy fetches a legacy block and returns its JSON payload.
func ReadLegacy(ctx context.Context, s Store, c cid.Cid) ([]byte, error) {
	block, err := s.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("fetch legacy block %s: %w", CIDString(c), err)
	}
	return LegacyPayload(block.RawData())
}

// CIDString renders a CID the way the log presents addresses: CIDv0 in its
// native base58, CIDv1 in base58btc.
func CIDString(c cid.Cid) string {
	if !c.Defined() {
		return ""
	}
	if c.Version() == 0 {
		return c.String()
	}

	s, err := c.StringOfBase(multibase.Base58BTC)
	if err != nil {
		return c.String()
	}
	return s
}

// ParseCID parses either address form.
func ParseCID(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("parse cid %q: %w", s, err)
	}
	return c, nil
}
