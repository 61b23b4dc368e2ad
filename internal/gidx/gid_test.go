package gidx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	g, err := Parse("01:23:45:67:89:AB:CD:EF")
	require.NoError(t, err)
	assert.Equal(t, GID(0x0123456789ABCDEF), g)
	assert.Equal(t, "01:23:45:67:89:AB:CD:EF", g.String())
}

func TestParse_LowercaseHex(t *testing.T) {
	g, err := Parse("ab:cd:ef:01:02:03:04:05")
	require.NoError(t, err)
	assert.Equal(t, GID(0xABCDEF0102030405), g)
}

func TestParse_TooShort(t *testing.T) {
	_, err := Parse("01:23")
	assert.Error(t, err, "expected error for a short gid string")
}

func TestParse_BadHexDigit(t *testing.T) {
	_, err := Parse("ZZ:23:45:67:89:AB:CD:EF")
	assert.Error(t, err, "expected error for non-hex digits")
}

func TestIndexFileName(t *testing.T) {
	g, err := Parse("01:23:45:67:89:AB:CD:EF")
	require.NoError(t, err)
	assert.Equal(t, "gidx.0123456789ABCDEF", IndexFileName("gidx.", g))
}
