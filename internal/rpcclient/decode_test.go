package rpcclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHexUint(t *testing.T) {
	n, err := parseHexUint("0x1a")
	require.NoError(t, err)
	require.Equal(t, uint64(26), n)
}

func TestParseHexUintEmpty(t *testing.T) {
	n, err := parseHexUint("0x")
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)
}

func TestParseHexBytes(t *testing.T) {
	b, err := parseHexBytes("0xdeadbeef")
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)
}

func TestParseHexBytesOddLength(t *testing.T) {
	b, err := parseHexBytes("0xabc")
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0xbc}, b)
}

func TestParseHexHash(t *testing.T) {
	h, err := parseHexHash("0x" + "00112233445566778899aabbccddeeff0011223344556677889900112233aa")
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), h[31])
}

func TestIsTransientRPCErrorUnknownErrorIsFatal(t *testing.T) {
	require.False(t, isTransientRPCError(errMalformed{}))
}

type errMalformed struct{}

func (errMalformed) Error() string { return "malformed request" }
