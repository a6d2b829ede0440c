package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsketch/internal/domain"
)

func dev(id string, kind domain.Kind) domain.Device {
	return domain.Device{ID: id, Kind: kind, State: domain.StateOnline}
}

func testAggregator(root domain.Device) domain.Device {
	return domain.Device{ID: "agg", Kind: domain.KindSwitch, DisplayName: "Virtual Switch"}
}

func TestElectRoot(t *testing.T) {
	assert.Equal(t, -1, ElectRoot(nil))
	assert.Equal(t, 0, ElectRoot([]domain.Device{dev("a", domain.KindPC), dev("b", domain.KindServer)}))
	assert.Equal(t, 1, ElectRoot([]domain.Device{dev("a", domain.KindPC), dev("r", domain.KindRouter), dev("r2", domain.KindRouter)}))
}

func TestAttachDirect(t *testing.T) {
	in := []domain.Device{dev("pc", domain.KindPC), dev("gw", domain.KindRouter), dev("srv", domain.KindServer)}

	out := Attach(in, AttachOptions{FanOutThreshold: DefaultFanOutThreshold, Aggregator: testAggregator})

	require.Len(t, out, 3)
	assert.Equal(t, "gw", out[0].ID)
	assert.True(t, out[0].IsRoot())
	for _, d := range out[1:] {
		assert.Equal(t, "gw", d.ParentID, d.ID)
	}
	assert.True(t, in[0].IsRoot(), "input must not be modified")
}

func TestAttachAggregates(t *testing.T) {
	in := []domain.Device{dev("gw", domain.KindRouter)}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		in = append(in, dev(id, domain.KindPC))
	}

	out := Attach(in, AttachOptions{FanOutThreshold: 6, Aggregator: testAggregator})

	require.Len(t, out, 8)
	assert.Equal(t, "agg", out[1].ID)
	assert.Equal(t, "gw", out[1].ParentID)
	for _, d := range out[2:] {
		assert.Equal(t, "agg", d.ParentID, d.ID)
	}
}

func TestAttachThresholdIsExclusive(t *testing.T) {
	in := []domain.Device{dev("gw", domain.KindRouter)}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		in = append(in, dev(id, domain.KindPC))
	}

	out := Attach(in, AttachOptions{FanOutThreshold: 6, Aggregator: testAggregator})

	require.Len(t, out, 6)
	for _, d := range out[1:] {
		assert.Equal(t, "gw", d.ParentID)
	}
}

func TestAttachDisabledAggregation(t *testing.T) {
	var in []domain.Device
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		in = append(in, dev(id, domain.KindPC))
	}

	out := Attach(in, AttachOptions{})

	require.Len(t, out, 8)
	assert.Equal(t, "a", out[0].ID)
	for _, d := range out[1:] {
		assert.Equal(t, "a", d.ParentID)
	}
}

func TestAttachSingleAndEmpty(t *testing.T) {
	assert.Nil(t, Attach(nil, AttachOptions{}))

	single := domain.Device{ID: "only", ParentID: "gone"}
	out := Attach([]domain.Device{single}, AttachOptions{})
	require.Len(t, out, 1)
	assert.True(t, out[0].IsRoot())
}
