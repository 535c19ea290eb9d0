package armor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kstor/internal/armor"
)

func TestRoundTripArbitraryBytes(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		{0x00, 0xff, 0x10, 0x80, 0x7f},
		[]byte("non-\xff\xfeutf8"),
	}
	for _, b := range cases {
		v := armor.Encode(b)
		back, err := v.Decode()
		require.NoError(t, err)
		require.Equal(t, b, back)
	}
}

func TestEmpty(t *testing.T) {
	var v armor.Value
	require.True(t, v.Empty())
	require.False(t, armor.Encode([]byte("x")).Empty())
}

func TestTypedWrappers(t *testing.T) {
	ct := armor.EncodeCiphertext([]byte("ciphertext"))
	require.Equal(t, []byte("ciphertext"), ct.Bytes())

	pub := armor.EncodePublicKey([]byte("pub"))
	require.Equal(t, []byte("pub"), pub.Bytes())

	priv := armor.EncodePrivateKey([]byte("priv"))
	require.Equal(t, []byte("priv"), priv.Bytes())
}
