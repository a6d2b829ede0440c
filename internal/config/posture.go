package config

import (
	"time"

	"netsketch/internal/adapter"
	"netsketch/internal/retry"
)

// Posture defines how hard the prober pushes the local network
type Posture string

const (
	PostureStealth    Posture = "stealth"    // few probes in flight, long deadlines
	PostureCautious   Posture = "cautious"   // conservative
	PostureBalanced   Posture = "balanced"   // default
	PostureAggressive Posture = "aggressive" // wide batches, short deadlines
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// PostureProfiles maps postures to their default prober settings
var PostureProfiles = map[Posture]adapter.ProberConfig{
	PostureStealth: {
		RangeStart:      1,
		RangeEnd:        254,
		Concurrency:     2,
		Timeout:         3 * time.Second,
		FanOutThreshold: 6,
		FastFailLatency: 5 * time.Millisecond,
		Retry:           retry.Policy{Retries: 0, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second},
	},
	PostureCautious: {
		RangeStart:      1,
		RangeEnd:        254,
		Concurrency:     6,
		Timeout:         2 * time.Second,
		FanOutThreshold: 6,
		FastFailLatency: 5 * time.Millisecond,
		Retry:           retry.Policy{Retries: 1, InitialDelay: 250 * time.Millisecond, MaxDelay: time.Second},
	},
	PostureBalanced: adapter.DefaultProberConfig(),
	PostureAggressive: {
		RangeStart:      1,
		RangeEnd:        254,
		Concurrency:     32,
		Timeout:         800 * time.Millisecond,
		FanOutThreshold: 6,
		FastFailLatency: 5 * time.Millisecond,
		Retry:           retry.Policy{Retries: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
	},
}

// GetProfile returns the prober profile for a posture
func (p Posture) GetProfile() adapter.ProberConfig {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
