package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestPageCipherPreservesLength(t *testing.T) {
	c, err := NewPageCipher(testKey)
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("stratadb"), 128)
	buf := append([]byte(nil), plain...)
	require.NoError(t, c.Encode(4096, buf))
	require.Len(t, buf, len(plain))
	require.NotEqual(t, plain, buf)

	other := append([]byte(nil), plain...)
	require.NoError(t, c.Encode(8192, other))
	require.NotEqual(t, buf, other, "pages at different addresses must not share a key stream")

	require.NoError(t, c.Decode(4096, buf))
	require.Equal(t, plain, buf)
}

func TestRecordCipherDetectsTampering(t *testing.T) {
	c, err := NewRecordCipher(testKey[:16])
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("K1=V1"))
	require.NoError(t, err)
	opened, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("K1=V1"), opened)

	sealed[len(sealed)-1] ^= 1
	_, err = c.Open(sealed)
	require.Error(t, err)

	_, err = c.Open([]byte{1, 2})
	require.ErrorIs(t, err, ErrShortCiphertext)
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := NewPageCipher([]byte("short"))
	require.Error(t, err)
	_, err = NewRecordCipher(nil)
	require.Error(t, err)
}
