package util

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubnets(t *testing.T) {
	blocks, err := ParseSubnets([]string{"10.0.0.0/8", "192.168.1.1", "2001:db8::/32", "::1"})
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	// bare addresses get host masks
	ones, _ := blocks[1].Mask.Size()
	assert.Equal(t, 32, ones)
	ones, _ = blocks[3].Mask.Size()
	assert.Equal(t, 128, ones)
}

func TestParseSubnetsBadEntry(t *testing.T) {
	_, err := ParseSubnets([]string{"not-an-address"})
	assert.Error(t, err)
}

func TestContainsIP(t *testing.T) {
	blocks, err := ParseSubnets([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	assert.True(t, ContainsIP(blocks, net.ParseIP("10.1.2.3")))
	assert.False(t, ContainsIP(blocks, net.ParseIP("11.1.2.3")))
}

func TestIsIPv6(t *testing.T) {
	assert.True(t, IsIPv6("2001:db8::/32"))
	assert.False(t, IsIPv6("10.0.0.0/8"))
}
