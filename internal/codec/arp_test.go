package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsketch/internal/domain"
	"netsketch/internal/topology"
)

const arpSample = `? (192.168.1.1) at 4c:5e:0c:11:22:33 on en0 ifscope [ethernet]
? (192.168.1.20) at b8-27-eb-aa-bb-cc on en0 ifscope [ethernet]
? (192.168.1.20) at 00:00:00:00:00:01 on en0 ifscope [ethernet]
? (224.0.0.251) at 01:00:5e:00:00:fb on en0 ifscope permanent [ethernet]
? (192.168.1.255) at ff:ff:ff:ff:ff:ff on en0 ifscope [ethernet]
? (192.168.1.30) at (incomplete) on en0 ifscope [ethernet]
Interface: 192.168.1.50 --- 0x4
  192.168.1.77          aa-bb-cc-dd-ee-ff     dynamic
`

func fixedLatency() float64 { return 7 }

func TestARPParse(t *testing.T) {
	c := NewARPCodec()
	c.Latency = fixedLatency

	devices, err := c.Parse(strings.NewReader(arpSample))
	require.NoError(t, err)
	require.Len(t, devices, 3)

	root := devices[0]
	assert.Equal(t, "arp-192-168-1-1", root.ID)
	assert.Equal(t, domain.KindRouter, root.Kind)
	assert.Equal(t, "MikroTik", root.Vendor)
	assert.True(t, root.IsRoot())

	pi := devices[1]
	assert.Equal(t, "192.168.1.20", pi.Address)
	assert.Equal(t, "b8:27:eb:aa:bb:cc", pi.HardwareAddress, "first occurrence kept, MAC normalized")
	assert.Equal(t, "Raspberry Pi Foundation", pi.Vendor)
	assert.Equal(t, domain.KindPC, pi.Kind)
	assert.Equal(t, root.ID, pi.ParentID)

	other := devices[2]
	assert.Equal(t, "192.168.1.77", other.Address)
	assert.Equal(t, domain.VendorUnknown, other.Vendor)

	for _, d := range devices {
		assert.Equal(t, domain.StateOnline, d.State)
		assert.Equal(t, 7.0, d.Latency())
	}

	res, err := topology.Sanitize(devices)
	require.NoError(t, err)
	assert.Zero(t, res.Repairs.Total())
}

func TestARPParseEmpty(t *testing.T) {
	devices, err := NewARPCodec().Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)

	devices, err = NewARPCodec().Parse(strings.NewReader("no addresses here\n10.0.0.1 only an ip\n"))
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestARPParseWithoutRouterPromotesFirst(t *testing.T) {
	input := "10.0.0.5 00:11:32:00:00:01\n10.0.0.6 00:11:32:00:00:02\n10.0.0.254 00:11:32:00:00:03\n"
	devices, err := NewARPCodec().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, "10.0.0.254", devices[0].Address, ".254 is classified as router and elected")
	assert.Equal(t, domain.KindRouter, devices[0].Kind)

	input = "10.0.0.5 00:11:32:00:00:01\n10.0.0.6 00:11:32:00:00:02\n"
	devices, err = NewARPCodec().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].IsRoot())
	assert.Equal(t, "10.0.0.5", devices[0].Address)
	assert.Equal(t, devices[0].ID, devices[1].ParentID)
}

func TestARPLatencyPlaceholderRange(t *testing.T) {
	devices, err := NewARPCodec().Parse(strings.NewReader(arpSample))
	require.NoError(t, err)
	for _, d := range devices {
		require.NotNil(t, d.LatencyMs)
		assert.GreaterOrEqual(t, d.Latency(), 1.0)
		assert.LessOrEqual(t, d.Latency(), 20.0)
	}
}

func TestARPParseMixedDelimiters(t *testing.T) {
	input := "192.168.1.1 aa-bb-cc-dd-ee-ff dynamic\n192.168.1.50 11:22:33:44:55:66 static\n192.168.1.60 dynamic\n"
	devices, err := NewARPCodec().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, domain.KindRouter, devices[0].Kind)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", devices[0].HardwareAddress)
	assert.Equal(t, domain.KindPC, devices[1].Kind)
}
