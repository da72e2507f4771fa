package vnic

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateMACDeterministic(t *testing.T) {
	a := GenerateMAC(4)
	b := GenerateMAC(4)
	require.Equal(t, a, b)

	c := GenerateMAC(5)
	require.NotEqual(t, a, c)
}

func TestGenerateMACIsLocallyAdministered(t *testing.T) {
	mac, err := net.ParseMAC(GenerateMAC(1))
	require.NoError(t, err)
	require.Equal(t, byte(0x02), mac[0]&0x02)
}

func TestInterfaceName(t *testing.T) {
	require.Equal(t, "vcam4", InterfaceName(4))
}
