package codec

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/data"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCodecRoundTrip(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{
		"hi",
		"",
		"https://cdn.example.com/media/abc123.jpg",
		strings.Repeat("é", 2000),
	} {
		opaque, err := c.Encode(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, []byte(plaintext), opaque)

		got, err := c.Decode(opaque)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCodecRejectsBadKey(t *testing.T) {
	_, err := New("not-hex")
	assert.Error(t, err)

	_, err = New(hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestCodecDecodeCorrupt(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	// Too short to even hold a nonce and tag.
	_, err = c.Decode([]byte{1, 2, 3})
	assert.True(t, data.IsKind(err, data.KindCorrupt))

	// Tampered ciphertext must fail authentication.
	opaque, err := c.Encode("payload")
	require.NoError(t, err)
	opaque[len(opaque)-1] ^= 0xff
	_, err = c.Decode(opaque)
	assert.True(t, data.IsKind(err, data.KindCorrupt))
}

func TestCodecForeignKey(t *testing.T) {
	a, err := New(testKey)
	require.NoError(t, err)
	b, err := New("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	opaque, err := a.Encode("secret")
	require.NoError(t, err)

	_, err = b.Decode(opaque)
	assert.True(t, data.IsKind(err, data.KindCorrupt))
}
