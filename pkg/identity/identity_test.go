package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIdentitySignVerify(t *testing.T) {
	p := NewEd25519Provider()

	ident, err := p.CreateIdentity("userA")
	require.NoError(t, err)
	require.NotEmpty(t, ident.PublicKey)
	assert.Equal(t, "userA", ident.ID)
	assert.Equal(t, "ed25519", ident.Type)

	sig, err := p.Sign(ident, []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, p.Verify(sig, ident.PublicKey, []byte("payload")))
	assert.Error(t, p.Verify(sig, ident.PublicKey, []byte("tampered")))
}

func TestVerifyAcrossProviders(t *testing.T) {
	signer := NewEd25519Provider()
	ident, err := signer.CreateIdentity("userA")
	require.NoError(t, err)

	sig, err := signer.Sign(ident, []byte("hello"))
	require.NoError(t, err)

	// a provider that never saw the keypair can still verify
	verifier := NewEd25519Provider()
	require.NoError(t, verifier.Verify(sig, ident.PublicKey, []byte("hello")))
}

func TestSignUnknownKey(t *testing.T) {
	p := NewEd25519Provider()
	_, err := p.Sign(&Identity{PublicKey: "deadbeef"}, []byte("x"))
	assert.Error(t, err)
}

func TestFilteredDropsProvider(t *testing.T) {
	p := NewEd25519Provider()
	ident, err := p.CreateIdentity("userA")
	require.NoError(t, err)

	filtered := ident.Filtered()
	assert.Nil(t, filtered.Provider)
	assert.Equal(t, ident.PublicKey, filtered.PublicKey)
	assert.Equal(t, ident.Signatures, filtered.Signatures)
}

func TestUnmarshalLegacyKeyField(t *testing.T) {
	raw := []byte(`{"id":"userA","key":"abcd"}`)

	var ident Identity
	require.NoError(t, json.Unmarshal(raw, &ident))
	assert.Equal(t, "abcd", ident.PublicKey, "legacy 'key' maps to publicKey")
}
