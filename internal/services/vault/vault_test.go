package vault

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/jobpilot/internal/common"
)

const hexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestRoundTrip(t *testing.T) {
	v, err := New(hexKey)
	require.NoError(t, err)

	random := make([]byte, 257)
	_, _ = rand.Read(random)

	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("exactly sixteen!"),
		[]byte(`{"cookies":[{"name":"li_at","value":"x"}]}`),
		random,
	}
	for _, in := range inputs {
		ct, err := v.Encrypt(in)
		require.NoError(t, err)

		out, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		assert.Equal(t, string(in), string(out))
	}
}

func TestEncryptFormatAndFreshIV(t *testing.T) {
	v, err := New(strings.Repeat("k", 32))
	require.NoError(t, err)

	a, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)

	ivHex, ctHex, ok := strings.Cut(a, ":")
	require.True(t, ok)
	assert.Len(t, ivHex, 32)
	assert.Len(t, ctHex, 32)
	assert.NotEqual(t, a, b, "each call uses a new iv")
}

func TestKeyValidation(t *testing.T) {
	for _, key := range []string{"", "short", strings.Repeat("z", 64)} {
		_, err := New(key)
		assert.ErrorIs(t, err, common.ErrCrypto, "key %q", key)
	}
}

func TestDecryptRejectsCorruptInput(t *testing.T) {
	v, err := New(hexKey)
	require.NoError(t, err)

	good, err := v.Encrypt([]byte("payload"))
	require.NoError(t, err)

	cases := []string{
		"",
		"noseparator",
		"zz:00",
		"0011:00112233445566778899aabbccddeeff",
		good[:len(good)-2],
		good[:33],
	}
	for _, c := range cases {
		_, err := v.Decrypt(c)
		assert.ErrorIs(t, err, common.ErrCrypto, "input %q", c)
	}
}

func TestWrongKeyFails(t *testing.T) {
	a, err := New(hexKey)
	require.NoError(t, err)
	b, err := New(strings.Repeat("b", 32))
	require.NoError(t, err)

	ct, err := a.Encrypt([]byte("credential blob that spans blocks"))
	require.NoError(t, err)

	out, err := b.Decrypt(ct)
	if err == nil {
		// Padding can validate by chance; the plaintext never matches
		assert.NotEqual(t, "credential blob that spans blocks", string(out))
	} else {
		assert.ErrorIs(t, err, common.ErrCrypto)
	}
}
