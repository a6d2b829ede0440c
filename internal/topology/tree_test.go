package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsketch/internal/domain"
)

func TestBuildTree(t *testing.T) {
	devices := []domain.Device{
		child("pc1", "sw", domain.KindPC),
		dev("gw", domain.KindRouter),
		child("sw", "gw", domain.KindSwitch),
		child("pc2", "sw", domain.KindPC),
	}

	tree, err := BuildTree(devices)

	require.NoError(t, err)
	assert.Equal(t, 1, tree.Root)
	assert.Equal(t, []int{2}, tree.Children[1])
	assert.Equal(t, []int{0, 3}, tree.Children[2])
	assert.Equal(t, 3, tree.Depth())
	assert.Equal(t, "gw", tree.Nested().ID)
}

func TestBuildTreeRejectsInvalidSets(t *testing.T) {
	tests := []struct {
		name    string
		devices []domain.Device
	}{
		{"two roots", []domain.Device{dev("a", domain.KindPC), dev("b", domain.KindPC)}},
		{"dangling", []domain.Device{dev("a", domain.KindPC), child("b", "zz", domain.KindPC)}},
		{"cycle", []domain.Device{dev("a", domain.KindPC), child("b", "c", domain.KindPC), child("c", "b", domain.KindPC)}},
		{"duplicate", []domain.Device{dev("a", domain.KindPC), child("a", "a", domain.KindPC)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTree(tt.devices)
			assert.ErrorIs(t, err, ErrStructural)
		})
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	tree, err := BuildTree(nil)
	require.NoError(t, err)
	assert.Equal(t, -1, tree.Root)
	assert.Equal(t, 0, tree.Depth())
}
