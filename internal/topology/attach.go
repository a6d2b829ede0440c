package topology

import "netsketch/internal/domain"

// DefaultFanOutThreshold is the number of present hosts above which a
// synthetic aggregation switch is inserted under the root.
const DefaultFanOutThreshold = 6

// AttachOptions controls root unification
type AttachOptions struct {
	// FanOutThreshold enables aggregation when len(devices) exceeds it.
	// Zero disables aggregation.
	FanOutThreshold int
	// Aggregator builds the synthetic switch for the elected root.
	// Aggregation is skipped when nil.
	Aggregator func(root domain.Device) domain.Device
}

// ElectRoot returns the index of the first router, else 0. It returns -1 for
// an empty list.
func ElectRoot(devices []domain.Device) int {
	if len(devices) == 0 {
		return -1
	}
	for i, d := range devices {
		if d.Kind == domain.KindRouter {
			return i
		}
	}
	return 0
}

// Attach elects a root and links every other device beneath it, either
// directly or through a synthetic aggregation switch. The input is not
// modified. The aggregation switch, when created, is placed right after the root.
func Attach(devices []domain.Device, opts AttachOptions) []domain.Device {
	rootIdx := ElectRoot(devices)
	if rootIdx < 0 {
		return nil
	}

	out := make([]domain.Device, 0, len(devices)+1)
	root := devices[rootIdx]
	root.ParentID = ""

	if len(devices) == 1 {
		return append(out, root)
	}

	parentID := root.ID
	out = append(out, root)

	if opts.Aggregator != nil && opts.FanOutThreshold > 0 && len(devices) > opts.FanOutThreshold {
		agg := opts.Aggregator(root)
		agg.ParentID = root.ID
		out = append(out, agg)
		parentID = agg.ID
	}

	for i, d := range devices {
		if i == rootIdx {
			continue
		}
		d.ParentID = parentID
		out = append(out, d)
	}
	return out
}
