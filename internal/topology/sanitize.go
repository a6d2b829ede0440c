package topology

import "netsketch/internal/domain"

// Repairs counts the fixes Sanitize applied
type Repairs struct {
	// Dangling is the number of parent references that named no device.
	Dangling int `json:"dangling"`
	// Cycles is the number of parent cycles broken.
	Cycles int `json:"cycles"`
	// Reparented is the number of extra roots attached to the primary root.
	Reparented int `json:"reparented"`
}

// Total returns the number of ParentID rewrites
func (r Repairs) Total() int {
	return r.Dangling + r.Cycles + r.Reparented
}

// Result is a sanitized device set
type Result struct {
	Devices []domain.Device
	RootID  string
	Repairs Repairs
}

// Sanitize repairs devices into a single rooted tree:
//
//  1. parent references to unknown IDs are cleared
//  2. a set with no candidate root is a structural error
//  3. cycles that never reach a root are broken at their first device in input order
//  4. the primary root (first router among roots, else first root) adopts every other root
//
// Only ParentID is ever rewritten. Empty input yields an empty result.
func Sanitize(devices []domain.Device) (*Result, error) {
	if len(devices) == 0 {
		return &Result{Devices: []domain.Device{}}, nil
	}

	out := make([]domain.Device, len(devices))
	copy(out, devices)

	index := make(map[string]int, len(out))
	for i, d := range out {
		if d.ID == "" {
			return nil, structural("device at position %d has no id", i)
		}
		if _, dup := index[d.ID]; dup {
			return nil, structural("duplicate device id %q", d.ID)
		}
		index[d.ID] = i
	}

	var repairs Repairs

	for i := range out {
		if out[i].ParentID == "" {
			continue
		}
		if _, ok := index[out[i].ParentID]; !ok || out[i].ParentID == out[i].ID {
			out[i].ParentID = ""
			repairs.Dangling++
		}
	}

	if countRoots(out) == 0 {
		return nil, structural("no device without a parent among %d devices", len(out))
	}

	repairs.Cycles = breakCycles(out, index)

	primary := -1
	for i, d := range out {
		if !d.IsRoot() {
			continue
		}
		if primary < 0 {
			primary = i
		}
		if d.Kind == domain.KindRouter {
			primary = i
			break
		}
	}

	rootID := out[primary].ID
	for i := range out {
		if i != primary && out[i].IsRoot() {
			out[i].ParentID = rootID
			repairs.Reparented++
		}
	}

	return &Result{Devices: out, RootID: rootID, Repairs: repairs}, nil
}

func countRoots(devices []domain.Device) int {
	n := 0
	for _, d := range devices {
		if d.IsRoot() {
			n++
		}
	}
	return n
}

// breakCycles walks upward from every device. A walk that revisits a device
// of its own path without reaching a root has found a cycle, which is broken by
// clearing the parent of the cycle member that comes first in input order.
func breakCycles(devices []domain.Device, index map[string]int) int {
	const (
		unvisited = iota
		inPath
		done
	)
	state := make([]int, len(devices))
	broken := 0

	for start := range devices {
		if state[start] != unvisited {
			continue
		}

		var path []int
		i := start
		for {
			if state[i] == done {
				break
			}
			if state[i] == inPath {
				// i is the entry of a cycle; collect its members
				first := i
				for j := len(path) - 1; path[j] != i; j-- {
					if path[j] < first {
						first = path[j]
					}
				}
				devices[first].ParentID = ""
				broken++
				break
			}
			state[i] = inPath
			path = append(path, i)
			if devices[i].IsRoot() {
				break
			}
			i = index[devices[i].ParentID]
		}

		for _, p := range path {
			state[p] = done
		}
	}
	return broken
}
