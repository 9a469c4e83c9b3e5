package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := Generate()
	require.NoError(t, err)

	msg := []byte("hello world")
	sig := Sign(priv, msg)
	require.NoError(t, Verify(pub, msg, sig))
}

func TestVerifyTamperedMessageFails(t *testing.T) {
	pub, priv, err := Generate()
	require.NoError(t, err)

	sig := Sign(priv, []byte("hello world"))
	err = Verify(pub, []byte("hello mundo"), sig)
	require.ErrorIs(t, err, ErrVerifyFailed)
}

func TestDiscoveryKeyDeterministicAndDistinct(t *testing.T) {
	pub1, _, err := Generate()
	require.NoError(t, err)
	pub2, _, err := Generate()
	require.NoError(t, err)

	d1a := DiscoveryKey(pub1)
	d1b := DiscoveryKey(pub1)
	require.Equal(t, d1a, d1b)

	d2 := DiscoveryKey(pub2)
	require.NotEqual(t, d1a, d2)
}

func TestDeriveKeypairDeterministic(t *testing.T) {
	secret := []byte("root secret material for derivation")

	pub1, priv1, err := DeriveKeypair(secret, "writer")
	require.NoError(t, err)
	pub2, priv2, err := DeriveKeypair(secret, "writer")
	require.NoError(t, err)

	require.Equal(t, pub1, pub2)
	require.Equal(t, priv1, priv2)

	pub3, _, err := DeriveKeypair(secret, "replica")
	require.NoError(t, err)
	require.NotEqual(t, pub1, pub3)

	pub4, _, err := DeriveKeypair([]byte("different secret"), "writer")
	require.NoError(t, err)
	require.NotEqual(t, pub1, pub4)
}

func TestDeriveKeypairUsable(t *testing.T) {
	pub, priv, err := DeriveKeypair([]byte("secret"), "name")
	require.NoError(t, err)

	sig := Sign(priv, []byte("message"))
	require.NoError(t, Verify(pub, []byte("message"), sig))
}
