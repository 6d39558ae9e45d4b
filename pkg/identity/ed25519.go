package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const ed25519Type = "ed25519"

// ErrSignatureInvalid is returned when a signature does not verify.
var ErrSignatureInvalid = errors.New("signature does not verify")

// Ed25519Provider signs and verifies with ed25519 keys it generated itself.
// Verification only needs the public key embedded in the entry, so a fresh
// provider can verify entries authored by any other provider.
type Ed25519Provider struct {
	keys map[string]ed25519.PrivateKey // hex public key -> private key
}

// NewEd25519Provider returns an empty provider. Call CreateIdentity to add
// authors.
func NewEd25519Provider() *Ed25519Provider {
	return &Ed25519Provider{keys: make(map[string]ed25519.PrivateKey)}
}

// CreateIdentity generates a keypair for the given author ID and returns
// the identity descriptor with the provider attached.
func (p *Ed25519Provider) CreateIdentity(id string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	pubHex := hex.EncodeToString(pub)
	p.keys[pubHex] = priv

	ident := &Identity{
		ID:        id,
		PublicKey: pubHex,
		Type:      ed25519Type,
		Provider:  p,
	}

	// The signatures block binds the author ID to the key and the key to
	// the ID, in that order.
	idSig := ed25519.Sign(priv, []byte(id))
	keySig := ed25519.Sign(priv, append([]byte(pubHex), idSig...))
	ident.Signatures = Signatures{
		ID:        hex.EncodeToString(idSig),
		PublicKey: hex.EncodeToString(keySig),
	}

	return ident, nil
}

// Sign signs data with the private key behind the identity's public key.
func (p *Ed25519Provider) Sign(ident *Identity, data []byte) (string, error) {
	if ident == nil {
		return "", errors.New("identity is nil")
	}

	priv, ok := p.keys[ident.PublicKey]
	if !ok {
		return "", fmt.Errorf("no private key for public key %s", ident.PublicKey)
	}

	return hex.EncodeToString(ed25519.Sign(priv, data)), nil
}

// Verify checks sig over data against the hex-encoded public key.
func (p *Ed25519Provider) Verify(sig string, publicKey string, data []byte) error {
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length: %d", len(pub))
	}

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), data, sigBytes) {
		return ErrSignatureInvalid
	}

	return nil
}

var _ Provider = (*Ed25519Provider)(nil)
