// Package identity describes who signs log entries and how signatures are
// checked. The log core only consumes the Provider interface; the ed25519
// provider in this package is the default used by the CLI and the tests.
package identity

import (
	"encoding/json"
	"fmt"
)

// Identity describes one author. PublicKey and the signature fields are
// hex-encoded so that identities survive JSON and CBOR round-trips
// unchanged.
type Identity struct {
	ID         string     `json:"id"`
	PublicKey  string     `json:"publicKey"`
	Signatures Signatures `json:"signatures"`
	Type       string     `json:"type"`

	Provider Provider `json:"-"`
}

// Signatures ties the identity ID and the public key together. Both fields
// are produced by the provider when the identity is created.
type Signatures struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
}

// Provider creates identities and verifies signatures made by them.
type Provider interface {
	// Sign signs data with the key behind the given identity.
	Sign(ident *Identity, data []byte) (string, error)
	// Verify checks sig over data for the given hex-encoded public key.
	Verify(sig string, publicKey string, data []byte) error
}

// Filtered returns a copy of the identity without the provider handle,
// which is what gets embedded into entries.
func (i *Identity) Filtered() *Identity {
	if i == nil {
		return nil
	}
	return &Identity{
		ID:         i.ID,
		PublicKey:  i.PublicKey,
		Signatures: i.Signatures,
		Type:       i.Type,
	}
}

// UnmarshalJSON fills defaults for identities written by the legacy entry
// format, which stored the public key under "key" and omitted the type.
func (i *Identity) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID         string     `json:"id"`
		PublicKey  string     `json:"publicKey"`
		Key        string     `json:"key"`
		Signatures Signatures `json:"signatures"`
		Type       string     `json:"type"`
	}

	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}

	i.ID = a.ID
	i.PublicKey = a.PublicKey
	if i.PublicKey == "" {
		i.PublicKey = a.Key
	}
	i.Signatures = a.Signatures
	i.Type = a.Type

	return nil
}
