package domain

// Tree is the rooted view handed to hierarchical layout consumers.
// Devices is an arena; Children holds, per device index, the indices of its
// children in input order.
type Tree struct {
	Devices  []Device `json:"devices"`
	Root     int      `json:"root"`
	Children [][]int  `json:"children"`
}

// TreeNode is the nested form of a Tree
type TreeNode struct {
	Device
	Children []TreeNode `json:"children,omitempty"`
}

// Nested converts the arena into a nested TreeNode hierarchy. A tree without a
// root yields nil.
func (t *Tree) Nested() *TreeNode {
	if t == nil || t.Root < 0 || t.Root >= len(t.Devices) {
		return nil
	}
	root := t.nest(t.Root)
	return &root
}

func (t *Tree) nest(i int) TreeNode {
	node := TreeNode{Device: t.Devices[i]}
	for _, c := range t.Children[i] {
		node.Children = append(node.Children, t.nest(c))
	}
	return node
}

// Depth returns the number of levels in the tree (0 for an empty tree)
func (t *Tree) Depth() int {
	if t == nil || t.Root < 0 || t.Root >= len(t.Devices) {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		deepest := 0
		for _, c := range t.Children[i] {
			if d := walk(c); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	}
	return walk(t.Root)
}
