package domain

import (
	"encoding/json"
	"strings"
)

// Kind represents the type of network device
type Kind string

const (
	KindRouter  Kind = "router"
	KindSwitch  Kind = "switch"
	KindPC      Kind = "pc"
	KindServer  Kind = "server"
	KindPrinter Kind = "printer"
	KindMobile  Kind = "mobile"
	KindIoT     Kind = "iot"
	KindCloud   Kind = "cloud"
)

// Kinds lists every valid Kind in display order
var Kinds = []Kind{KindRouter, KindSwitch, KindPC, KindServer, KindPrinter, KindMobile, KindIoT, KindCloud}

// ParseKind converts a string to Kind, defaulting to KindPC
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k
		}
	}
	return KindPC
}

// UnmarshalJSON accepts any casing and folds unknown kinds to KindPC
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseKind(s)
	return nil
}

// UnmarshalYAML accepts any casing and folds unknown kinds to KindPC
func (k *Kind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*k = ParseKind(s)
	return nil
}

// State represents the reachability state of a device
type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
	StateWarning State = "warning"
)

// ParseState converts a string to State, defaulting to StateOnline
func ParseState(s string) State {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateOffline:
		return StateOffline
	case StateWarning:
		return StateWarning
	default:
		return StateOnline
	}
}

// UnmarshalJSON accepts any casing and folds unknown states to StateOnline
func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseState(raw)
	return nil
}

// UnmarshalYAML accepts any casing and folds unknown states to StateOnline
func (s *State) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = ParseState(raw)
	return nil
}

// Vendor placeholders used when the manufacturer cannot be determined
const (
	VendorGeneric = "Generic"
	VendorUnknown = "Unknown"
)

// Device represents a discovered or synthesized network node.
// An empty ParentID marks a candidate root.
type Device struct {
	ID              string   `json:"id" yaml:"id"`
	Address         string   `json:"ip" yaml:"ip"`
	HardwareAddress string   `json:"mac" yaml:"mac"`
	DisplayName     string   `json:"name" yaml:"name"`
	Vendor          string   `json:"vendor" yaml:"vendor"`
	Kind            Kind     `json:"type" yaml:"type"`
	ParentID        string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	State           State    `json:"status" yaml:"status"`
	LatencyMs       *float64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
}

// IsRoot reports whether the device has no parent reference
func (d Device) IsRoot() bool {
	return d.ParentID == ""
}

// WithLatency returns a copy of the device with the given latency
func (d Device) WithLatency(ms float64) Device {
	d.LatencyMs = &ms
	return d
}

// Latency returns the latency in milliseconds, or 0 when unknown
func (d Device) Latency() float64 {
	if d.LatencyMs == nil {
		return 0
	}
	return *d.LatencyMs
}

// Replace splices updated into devices by ID match. It returns a new slice and
// false when no device carries the updated ID.
func Replace(devices []Device, updated Device) ([]Device, bool) {
	out := make([]Device, len(devices))
	copy(out, devices)
	for i := range out {
		if out[i].ID == updated.ID {
			out[i] = updated
			return out, true
		}
	}
	return out, false
}

// Find returns the device with the given ID
func Find(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
