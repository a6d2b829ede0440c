package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netsketch/internal/domain"
	"netsketch/internal/retry"
	"netsketch/internal/topology"
)

// ErrInvalidPrefix is returned for subnet prefixes that cannot be probed
var ErrInvalidPrefix = errors.New("invalid subnet prefix")

// ErrInvalidAddress is returned when a device has no probeable IPv4 address
var ErrInvalidAddress = errors.New("invalid device address")

// AggregatorID is the id of the synthetic switch inserted above the fan-out threshold
const AggregatorID = "switch-virtual"

// ProberConfig holds configuration for the host prober
type ProberConfig struct {
	// RangeStart and RangeEnd bound the host suffixes probed, inclusive
	RangeStart int
	RangeEnd   int
	// Concurrency is the batch width
	Concurrency int
	// Timeout is the per-probe deadline
	Timeout time.Duration
	// FanOutThreshold triggers the synthetic switch when exceeded. Zero disables it.
	FanOutThreshold int
	// FastFailLatency is recorded for hosts that refused rather than responded
	FastFailLatency time.Duration
	// Retry applies to local transient transport failures only
	Retry retry.Policy
}

// DefaultProberConfig returns the defaults for a /24 sweep
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		RangeStart:      1,
		RangeEnd:        254,
		Concurrency:     12,
		Timeout:         1500 * time.Millisecond,
		FanOutThreshold: topology.DefaultFanOutThreshold,
		FastFailLatency: 5 * time.Millisecond,
		Retry: retry.Policy{
			Retries:      2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
		},
	}
}

// Progress is reported after every settled batch
type Progress struct {
	Percent float64 `json:"percent"`
	Found   int     `json:"found"`
	Probed  int     `json:"probed"`
	Total   int     `json:"total"`
}

// Prober sweeps a /24 for hosts using best-effort HTTP probes
type Prober struct {
	config    ProberConfig
	transport Transport
	logger    *zap.Logger
}

// NewProber creates a prober. A nil transport selects HTTPTransport.
func NewProber(config ProberConfig, transport Transport, logger *zap.Logger) *Prober {
	if transport == nil {
		transport = NewHTTPTransport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Prober{
		config:    config,
		transport: transport,
		logger:    logger.Named("prober"),
	}
}

// Config returns the prober configuration
func (p *Prober) Config() ProberConfig {
	return p.config
}

// ParsePrefix validates a subnet prefix such as "192.168.1.", "192.168.1" or
// "192.168.1.0/24" and returns its three leading octets.
func ParsePrefix(s string) ([3]byte, error) {
	var out [3]byte
	s = strings.TrimSpace(s)

	if strings.Contains(s, "/") {
		pfx, err := netip.ParsePrefix(s)
		if err != nil || !pfx.Addr().Is4() || pfx.Bits() != 24 {
			return out, fmt.Errorf("%w: %q", ErrInvalidPrefix, s)
		}
		a := pfx.Masked().Addr().As4()
		copy(out[:], a[:3])
		return out, checkPrefix(out, s)
	}

	parts := strings.Split(strings.TrimSuffix(s, "."), ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("%w: %q", ErrInvalidPrefix, s)
	}
	for i, part := range parts {
		if part == "" || len(part) > 3 || strings.TrimLeft(part, "0123456789") != "" {
			return out, fmt.Errorf("%w: %q", ErrInvalidPrefix, s)
		}
		v, err := strconv.Atoi(part)
		if err != nil || v > 255 {
			return out, fmt.Errorf("%w: %q", ErrInvalidPrefix, s)
		}
		out[i] = byte(v)
	}
	return out, checkPrefix(out, s)
}

// checkPrefix rejects this-network, loopback, multicast and reserved ranges
func checkPrefix(p [3]byte, raw string) error {
	switch {
	case p[0] == 0, p[0] == 127:
		return fmt.Errorf("%w: %q is not a probeable network", ErrInvalidPrefix, raw)
	case p[0] >= 224:
		return fmt.Errorf("%w: %q is multicast or reserved", ErrInvalidPrefix, raw)
	}
	return nil
}

// FormatPrefix renders octets in the canonical "a.b.c." form
func FormatPrefix(p [3]byte) string {
	return fmt.Sprintf("%d.%d.%d.", p[0], p[1], p[2])
}

// ClassifySuffix infers a device kind from the host suffix alone
func ClassifySuffix(n int) domain.Kind {
	switch {
	case n == 1 || n == 254:
		return domain.KindRouter
	case n > 200:
		return domain.KindMobile
	case n < 10:
		return domain.KindServer
	default:
		return domain.KindPC
	}
}

// suffixes returns the probed host suffixes; .0 and .255 are never probed
func (p *Prober) suffixes() []int {
	start, end := p.config.RangeStart, p.config.RangeEnd
	if start < 1 {
		start = 1
	}
	if end > 254 {
		end = 254
	}
	out := make([]int, 0, max(end-start+1, 0))
	for n := start; n <= end; n++ {
		out = append(out, n)
	}
	return out
}

// Scan probes every host suffix of prefix in sequential batches and returns the
// present hosts linked under a single root. Per-host failures never abort the
// scan; cancelling ctx stops it at the next batch boundary.
func (p *Prober) Scan(ctx context.Context, prefix string, progress func(Progress)) ([]domain.Device, error) {
	base, err := ParsePrefix(prefix)
	if err != nil {
		return nil, err
	}

	suffixes := p.suffixes()
	total := len(suffixes)
	width := p.config.Concurrency
	results := make([]*domain.Device, total)
	found := 0

	p.logger.Info("scan started",
		zap.String("prefix", FormatPrefix(base)),
		zap.Int("hosts", total),
		zap.Int("concurrency", width),
		zap.Duration("timeout", p.config.Timeout))

	for start := 0; start < total; start += width {
		if err := ctx.Err(); err != nil {
			p.logger.Info("scan cancelled", zap.Int("probed", start), zap.Int("found", found))
			return nil, err
		}

		end := min(start+width, total)
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if d, ok := p.probeHost(gctx, base, suffixes[i]); ok {
					results[i] = &d
				}
				return nil
			})
		}
		_ = g.Wait()

		for i := start; i < end; i++ {
			if results[i] != nil {
				found++
			}
		}
		if progress != nil {
			progress(Progress{
				Percent: float64(end) * 100 / float64(total),
				Found:   found,
				Probed:  end,
				Total:   total,
			})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := make([]domain.Device, 0, found)
	for _, d := range results {
		if d != nil {
			devices = append(devices, *d)
		}
	}

	p.logger.Info("scan complete", zap.String("prefix", FormatPrefix(base)), zap.Int("found", len(devices)))

	if len(devices) == 0 {
		return devices, nil
	}
	return topology.Attach(devices, topology.AttachOptions{
		FanOutThreshold: p.config.FanOutThreshold,
		Aggregator: func(root domain.Device) domain.Device {
			return aggregationSwitch(base)
		},
	}), nil
}

// ProbeDevice re-probes a single device and returns an updated copy. Only
// State and LatencyMs change. The kind is kept whatever its source: a swept
// host already carries its suffix classification, and imported or generated
// kinds cannot be told apart from it.
func (p *Prober) ProbeDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	addr, err := netip.ParseAddr(d.Address)
	if err != nil || !addr.Is4() {
		return d, fmt.Errorf("%w: %q", ErrInvalidAddress, d.Address)
	}

	outcome, latency, ok := p.probe(ctx, addr.String())
	if err := ctx.Err(); err != nil {
		return d, err
	}

	updated := d
	if !ok || outcome == TimedOut {
		updated.State = domain.StateOffline
		updated.LatencyMs = nil
		return updated, nil
	}

	updated.State = domain.StateOnline
	return updated.WithLatency(latency), nil
}

type probeResult struct {
	outcome Outcome
	elapsed time.Duration
}

// probe runs one probe through the retry wrapper. ok is false when local
// failures exhausted the budget; the host is then treated as absent.
func (p *Prober) probe(ctx context.Context, address string) (Outcome, float64, bool) {
	url := "http://" + address
	res, err := retry.Do(ctx, p.config.Retry, p.logger, func(ctx context.Context) (probeResult, error) {
		pctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
		outcome, elapsed, err := p.transport.Probe(pctx, url)
		return probeResult{outcome: outcome, elapsed: elapsed}, err
	})
	if err != nil {
		p.logger.Debug("probe failed locally, treating host as absent",
			zap.String("address", address), zap.Error(err))
		return TimedOut, 0, false
	}

	switch res.outcome {
	case Responded:
		return Responded, durationMs(res.elapsed), true
	case Refused:
		return Refused, durationMs(p.config.FastFailLatency), true
	default:
		return TimedOut, 0, true
	}
}

func (p *Prober) probeHost(ctx context.Context, base [3]byte, n int) (domain.Device, bool) {
	address := fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], n)
	outcome, latency, ok := p.probe(ctx, address)
	if !ok || outcome == TimedOut {
		return domain.Device{}, false
	}
	return hostDevice(base, n, latency), true
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// hostDevice builds the device for a present host. The MAC is synthetic and
// derived from the suffix so repeated scans are stable.
func hostDevice(base [3]byte, n int, latencyMs float64) domain.Device {
	kind := ClassifySuffix(n)
	name := fmt.Sprintf("Host %d", n)
	if kind == domain.KindRouter {
		name = "Gateway"
	}
	return domain.Device{
		ID:              fmt.Sprintf("host-%d-%d-%d-%d", base[0], base[1], base[2], n),
		Address:         fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], n),
		HardwareAddress: fmt.Sprintf("02:00:00:00:00:%02x", n),
		DisplayName:     name,
		Vendor:          domain.VendorGeneric,
		Kind:            kind,
		State:           domain.StateOnline,
	}.WithLatency(latencyMs)
}

// aggregationSwitch is the synthetic switch at the reserved .0 address
func aggregationSwitch(base [3]byte) domain.Device {
	return domain.Device{
		ID:              AggregatorID,
		Address:         FormatPrefix(base) + "0",
		HardwareAddress: "02:00:00:00:01:00",
		DisplayName:     "Virtual Switch",
		Vendor:          domain.VendorGeneric,
		Kind:            domain.KindSwitch,
		State:           domain.StateOnline,
	}
}
