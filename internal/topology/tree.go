package topology

import "netsketch/internal/domain"

// BuildTree converts a sanitized device set into a tree arena. It re-checks
// the tree invariants and returns a StructuralError when they do not hold,
// so callers should run Sanitize first.
func BuildTree(devices []domain.Device) (*domain.Tree, error) {
	if len(devices) == 0 {
		return &domain.Tree{Devices: []domain.Device{}, Root: -1, Children: [][]int{}}, nil
	}

	index := make(map[string]int, len(devices))
	for i, d := range devices {
		if _, dup := index[d.ID]; dup {
			return nil, structural("duplicate device id %q", d.ID)
		}
		index[d.ID] = i
	}

	tree := &domain.Tree{
		Devices:  make([]domain.Device, len(devices)),
		Root:     -1,
		Children: make([][]int, len(devices)),
	}
	copy(tree.Devices, devices)

	for i, d := range devices {
		if d.IsRoot() {
			if tree.Root >= 0 {
				return nil, structural("more than one root (%q and %q)", devices[tree.Root].ID, d.ID)
			}
			tree.Root = i
			continue
		}
		p, ok := index[d.ParentID]
		if !ok {
			return nil, structural("device %q references unknown parent %q", d.ID, d.ParentID)
		}
		tree.Children[p] = append(tree.Children[p], i)
	}

	if tree.Root < 0 {
		return nil, structural("no root")
	}

	// every device must be reachable from the root, otherwise a cycle exists
	reached := 0
	stack := []int{tree.Root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reached++
		stack = append(stack, tree.Children[i]...)
	}
	if reached != len(devices) {
		return nil, structural("%d devices are not reachable from the root", len(devices)-reached)
	}

	return tree, nil
}
