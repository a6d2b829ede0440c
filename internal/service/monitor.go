package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netsketch/internal/adapter"
	"netsketch/internal/domain"
)

// refreshConcurrency bounds simultaneous re-probes within one scan
const refreshConcurrency = 4

// RefreshResult summarizes one re-probe pass over a stored scan
type RefreshResult struct {
	ScanID  string `json:"scan_id"`
	Probed  int    `json:"probed"`
	Changed int    `json:"changed"`
	Skipped int    `json:"skipped"`
}

// RefreshScan re-probes every addressable device of a stored scan and
// persists the new state and latency. Synthetic devices are skipped. Changed
// counts devices whose state flipped.
func (s *DiscoveryService) RefreshScan(ctx context.Context, scanID string) (*RefreshResult, error) {
	prober, err := s.currentProber()
	if err != nil {
		return nil, err
	}
	scan, err := s.repo.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{ScanID: scanID}
	updated := make([]*domain.Device, len(scan.Devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, d := range scan.Devices {
		if d.ID == adapter.AggregatorID || d.Address == "" {
			continue
		}
		g.Go(func() error {
			next, err := prober.ProbeDevice(gctx, d)
			if errors.Is(err, adapter.ErrInvalidAddress) {
				return nil
			}
			if err != nil {
				return err
			}
			updated[i] = &next
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, next := range updated {
		if next == nil {
			result.Skipped++
			continue
		}
		result.Probed++
		if err := s.repo.UpdateDevice(ctx, scanID, *next); err != nil {
			return nil, err
		}
		if next.State != scan.Devices[i].State {
			result.Changed++
			s.eventBus.Publish(Event{
				Type:    EventDeviceUpdated,
				Payload: map[string]any{"scan_id": scanID, "device": *next},
			})
		}
	}

	s.logger.Info("scan refreshed",
		zap.String("scan_id", scanID),
		zap.Int("probed", result.Probed),
		zap.Int("changed", result.Changed))
	s.eventBus.Publish(Event{Type: EventScanRefreshed, Payload: result})
	return result, nil
}

// Monitor periodically refreshes watched scans
type Monitor struct {
	svc      *DiscoveryService
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	scans map[string]struct{}
}

// NewMonitor creates a monitor that refreshes every interval
func NewMonitor(svc *DiscoveryService, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		svc:      svc,
		interval: interval,
		logger:   logger.Named("monitor"),
		scans:    make(map[string]struct{}),
	}
}

// Watch adds a scan to the refresh set after checking it exists
func (m *Monitor) Watch(ctx context.Context, scanID string) error {
	if _, err := m.svc.GetScan(ctx, scanID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[scanID] = struct{}{}
	return nil
}

// Unwatch removes a scan from the refresh set
func (m *Monitor) Unwatch(scanID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scans, scanID)
}

// Watched returns the watched scan ids in sorted order
func (m *Monitor) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.scans))
	for id := range m.scans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run refreshes watched scans on every tick until ctx is done. A
// non-positive interval disables the loop and Run returns immediately.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		m.logger.Info("monitor disabled")
		return
	}
	m.logger.Info("monitor started", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	for _, id := range m.Watched() {
		if ctx.Err() != nil {
			return
		}
		_, err := m.svc.RefreshScan(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			m.logger.Info("watched scan gone, unwatching", zap.String("scan_id", id))
			m.Unwatch(id)
		case ctx.Err() != nil:
			return
		default:
			m.logger.Warn("refresh failed", zap.String("scan_id", id), zap.Error(err))
		}
	}
}
