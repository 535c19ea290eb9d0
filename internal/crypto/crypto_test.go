package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kstor/internal/crypto"
)

func TestDeriveKeyIsReproducible(t *testing.T) {
	sk1, err := crypto.DeriveKey("hunter2", nil)
	require.NoError(t, err)
	require.False(t, sk1.Params.Obsolete())

	sk2, err := crypto.DeriveKey("hunter2", &sk1.Params)
	require.NoError(t, err)
	require.Equal(t, sk1.Value, sk2.Value)

	sk3, err := crypto.DeriveKey("different", &sk1.Params)
	require.NoError(t, err)
	require.NotEqual(t, sk1.Value, sk3.Value)
}

func TestSealOpenSecretRoundTrip(t *testing.T) {
	sk, err := crypto.DeriveKey("hunter2", nil)
	require.NoError(t, err)

	ct, err := crypto.SealSecret(sk, []byte("hello world"))
	require.NoError(t, err)

	pt, err := crypto.OpenSecret(sk, ct)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(pt))
}

func TestOpenSecretFailsWithWrongKey(t *testing.T) {
	sk1, err := crypto.DeriveKey("hunter2", nil)
	require.NoError(t, err)
	sk2, err := crypto.DeriveKey("other", nil)
	require.NoError(t, err)

	ct, err := crypto.SealSecret(sk1, []byte("hello"))
	require.NoError(t, err)

	_, err = crypto.OpenSecret(sk2, ct)
	require.Error(t, err)
}

func TestSealOpenPairRoundTrip(t *testing.T) {
	sender, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	recipient, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	senderPub := crypto.PublicKeyOf(sender)
	recipientPub := crypto.PublicKeyOf(recipient)

	ct, err := crypto.SealPair(recipientPub, sender, []byte("shared secret"))
	require.NoError(t, err)

	pt, err := crypto.OpenPair(senderPub, recipient, ct)
	require.NoError(t, err)
	require.Equal(t, "shared secret", string(pt))
}

func TestOpenPairFailsWithWrongSender(t *testing.T) {
	sender, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	impostor, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	recipient, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	ct, err := crypto.SealPair(crypto.PublicKeyOf(recipient), sender, []byte("msg"))
	require.NoError(t, err)

	_, err = crypto.OpenPair(crypto.PublicKeyOf(impostor), recipient, ct)
	require.Error(t, err)
}

func TestKeyPairFromPrivateRecomputesPublic(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	rebuilt, err := crypto.KeyPairFromPrivate(crypto.PrivateKeyBytes(kp))
	require.NoError(t, err)
	require.Equal(t, kp.Public, rebuilt.Public)
}

func TestKDFParamsObsolete(t *testing.T) {
	sk, err := crypto.DeriveKey("x", nil)
	require.NoError(t, err)
	require.False(t, sk.Params.Obsolete())

	stale := sk.Params
	stale.Version = 0
	require.True(t, stale.Obsolete())
}

func TestKDFParamsArmorRoundTrip(t *testing.T) {
	sk, err := crypto.DeriveKey("x", nil)
	require.NoError(t, err)

	armored, err := sk.Params.Armor()
	require.NoError(t, err)

	back, err := crypto.UnarmorKDFParams(armored)
	require.NoError(t, err)
	require.Equal(t, sk.Params, back)
}
