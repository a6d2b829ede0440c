package domain

import "time"

// ScanSource identifies which discovery path produced a scan
type ScanSource string

const (
	ScanSourceProbe    ScanSource = "probe"
	ScanSourceImport   ScanSource = "import"
	ScanSourceAI       ScanSource = "ai"
	ScanSourceParse    ScanSource = "parse"
	ScanSourceOptimize ScanSource = "optimize"
)

// Scan is the result of one discovery run. Devices are sanitized before a Scan
// is created, so RootID always names the single root device.
type Scan struct {
	ID        string     `json:"id"`
	Source    ScanSource `json:"source"`
	Subnet    string     `json:"subnet,omitempty"`
	RootID    string     `json:"root_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Devices   []Device   `json:"devices"`
}

// ScanSummary is the listing view of a scan without its devices
type ScanSummary struct {
	ID          string     `json:"id"`
	Source      ScanSource `json:"source"`
	Subnet      string     `json:"subnet,omitempty"`
	RootID      string     `json:"root_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeviceCount int        `json:"device_count"`
}

// Summary returns the listing view of the scan
func (s *Scan) Summary() ScanSummary {
	return ScanSummary{
		ID:          s.ID,
		Source:      s.Source,
		Subnet:      s.Subnet,
		RootID:      s.RootID,
		CreatedAt:   s.CreatedAt,
		DeviceCount: len(s.Devices),
	}
}
