package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"netsketch/internal/adapter"
	"netsketch/internal/codec"
	"netsketch/internal/domain"
	"netsketch/internal/repository"
	"netsketch/internal/topology"
)

var (
	// ErrNotFound is returned for unknown scans and devices
	ErrNotFound = repository.ErrNotFound
	// ErrInvalidInput is returned for malformed caller input
	ErrInvalidInput = errors.New("invalid input")
)

// HostProber sweeps subnets and re-probes single devices
type HostProber interface {
	Scan(ctx context.Context, prefix string, progress func(adapter.Progress)) ([]domain.Device, error)
	ProbeDevice(ctx context.Context, d domain.Device) (domain.Device, error)
}

// OptimizeResult pairs the assistant's reasoning with the persisted proposal
type OptimizeResult struct {
	Explanation string       `json:"explanation"`
	Scan        *domain.Scan `json:"scan"`
}

// DiscoveryService runs discovery paths and persists their sanitized output
type DiscoveryService struct {
	repo      repository.Repository
	assistant adapter.Assistant
	parser    codec.Importer
	eventBus  *EventBus
	logger    *zap.Logger

	mu     sync.RWMutex
	prober HostProber

	now   func() time.Time
	newID func() string
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(repo repository.Repository, prober HostProber, assistant adapter.Assistant, eventBus *EventBus, logger *zap.Logger) *DiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eventBus == nil {
		eventBus = NewEventBus()
	}
	if assistant == nil {
		assistant = adapter.NewOfflineAssistant()
	}
	return &DiscoveryService{
		repo:      repo,
		prober:    prober,
		assistant: assistant,
		parser:    codec.NewARPCodec(),
		eventBus:  eventBus,
		logger:    logger.Named("discovery"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetProber swaps the prober used by later scans. In-flight scans keep theirs.
func (s *DiscoveryService) SetProber(p HostProber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prober = p
}

func (s *DiscoveryService) currentProber() (HostProber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.prober == nil {
		return nil, errors.New("no prober configured")
	}
	return s.prober, nil
}

// ProbeSubnet sweeps prefix and persists the sanitized result
func (s *DiscoveryService) ProbeSubnet(ctx context.Context, prefix string) (*domain.Scan, error) {
	prober, err := s.currentProber()
	if err != nil {
		return nil, err
	}

	scanID := s.newID()
	s.eventBus.Publish(Event{
		Type:    EventScanStarted,
		Payload: map[string]any{"scan_id": scanID, "source": domain.ScanSourceProbe, "subnet": prefix},
	})

	devices, err := prober.Scan(ctx, prefix, func(p adapter.Progress) {
		s.eventBus.Publish(Event{
			Type: EventScanProgress,
			Payload: map[string]any{
				"scan_id": scanID,
				"percent": p.Percent,
				"found":   p.Found,
				"probed":  p.Probed,
				"total":   p.Total,
			},
		})
	})
	if err != nil {
		s.publishFailure(scanID, err)
		if errors.Is(err, adapter.ErrInvalidPrefix) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	return s.finalize(ctx, scanID, domain.ScanSourceProbe, prefix, devices)
}

// Import parses r in the named format and persists the sanitized result
func (s *DiscoveryService) Import(ctx context.Context, format string, r io.Reader) (*domain.Scan, error) {
	importer, ok := codec.Lookup(strings.ToLower(format))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported import format %q", ErrInvalidInput, format)
	}

	scanID := s.newID()
	s.eventBus.Publish(Event{
		Type:    EventScanStarted,
		Payload: map[string]any{"scan_id": scanID, "source": domain.ScanSourceImport, "format": importer.Format()},
	})

	devices, err := importer.Parse(r)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		s.publishFailure(scanID, err)
		return nil, err
	}

	return s.finalize(ctx, scanID, domain.ScanSourceImport, "", devices)
}

// Generate asks the assistant to invent a network
func (s *DiscoveryService) Generate(ctx context.Context, hint string) (*domain.Scan, error) {
	scanID := s.newID()
	s.eventBus.Publish(Event{
		Type:    EventScanStarted,
		Payload: map[string]any{"scan_id": scanID, "source": domain.ScanSourceAI},
	})

	devices, err := s.assistant.Generate(ctx, hint)
	if err != nil {
		s.publishFailure(scanID, err)
		return nil, err
	}

	return s.finalize(ctx, scanID, domain.ScanSourceAI, "", devices)
}

// ParseText extracts devices from pasted text. The assistant is tried first;
// when it fails the heuristic parser takes over.
func (s *DiscoveryService) ParseText(ctx context.Context, text string) (*domain.Scan, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}

	scanID := s.newID()
	s.eventBus.Publish(Event{
		Type:    EventScanStarted,
		Payload: map[string]any{"scan_id": scanID, "source": domain.ScanSourceParse},
	})

	devices, err := s.assistant.ParseText(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.publishFailure(scanID, ctxErr)
			return nil, ctxErr
		}
		s.logger.Warn("assistant parse failed, using heuristic parser", zap.Error(err))
		devices, err = s.parser.Parse(strings.NewReader(text))
		if err != nil {
			s.publishFailure(scanID, err)
			return nil, err
		}
	}

	return s.finalize(ctx, scanID, domain.ScanSourceParse, "", devices)
}

// Analyze returns the assistant's review of a stored scan
func (s *DiscoveryService) Analyze(ctx context.Context, scanID string) (string, error) {
	scan, err := s.repo.GetScan(ctx, scanID)
	if err != nil {
		return "", err
	}
	return s.assistant.Analyze(ctx, scan.Devices)
}

// Trace asks the assistant for a simulated route to target
func (s *DiscoveryService) Trace(ctx context.Context, target string) ([]domain.Hop, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: target is empty", ErrInvalidInput)
	}
	return s.assistant.Trace(ctx, target)
}

// Optimize asks the assistant for an improved topology of a stored scan and
// persists the proposal as a new scan
func (s *DiscoveryService) Optimize(ctx context.Context, scanID string) (*OptimizeResult, error) {
	original, err := s.repo.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	opt, err := s.assistant.Optimize(ctx, original.Devices)
	if err != nil {
		return nil, err
	}

	newID := s.newID()
	s.eventBus.Publish(Event{
		Type:    EventScanStarted,
		Payload: map[string]any{"scan_id": newID, "source": domain.ScanSourceOptimize, "from": scanID},
	})
	scan, err := s.finalize(ctx, newID, domain.ScanSourceOptimize, original.Subnet, opt.Devices)
	if err != nil {
		return nil, err
	}
	return &OptimizeResult{Explanation: opt.Explanation, Scan: scan}, nil
}

// ProbeDevice re-probes one device of a stored scan and splices the result in
func (s *DiscoveryService) ProbeDevice(ctx context.Context, scanID, deviceID string) (domain.Device, error) {
	prober, err := s.currentProber()
	if err != nil {
		return domain.Device{}, err
	}

	scan, err := s.repo.GetScan(ctx, scanID)
	if err != nil {
		return domain.Device{}, err
	}
	device, ok := domain.Find(scan.Devices, deviceID)
	if !ok {
		return domain.Device{}, fmt.Errorf("device %s in scan %s: %w", deviceID, scanID, ErrNotFound)
	}

	updated, err := prober.ProbeDevice(ctx, device)
	if err != nil {
		if errors.Is(err, adapter.ErrInvalidAddress) {
			return domain.Device{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return domain.Device{}, err
	}

	if err := s.repo.UpdateDevice(ctx, scanID, updated); err != nil {
		return domain.Device{}, err
	}

	s.eventBus.Publish(Event{
		Type:    EventDeviceUpdated,
		Payload: map[string]any{"scan_id": scanID, "device": updated},
	})
	return updated, nil
}

// GetScan returns a stored scan
func (s *DiscoveryService) GetScan(ctx context.Context, id string) (*domain.Scan, error) {
	return s.repo.GetScan(ctx, id)
}

// ListScans returns stored scan summaries, newest first
func (s *DiscoveryService) ListScans(ctx context.Context, limit int) ([]domain.ScanSummary, error) {
	return s.repo.ListScans(ctx, limit)
}

// Tree returns the nested tree of a stored scan. An empty scan has no tree
// and yields nil.
func (s *DiscoveryService) Tree(ctx context.Context, id string) (*domain.TreeNode, error) {
	scan, err := s.repo.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	tree, err := topology.BuildTree(scan.Devices)
	if err != nil {
		return nil, err
	}
	return tree.Nested(), nil
}

// DeleteScan removes a stored scan
func (s *DiscoveryService) DeleteScan(ctx context.Context, id string) error {
	if err := s.repo.DeleteScan(ctx, id); err != nil {
		return err
	}
	s.eventBus.Publish(Event{
		Type:    EventScanDeleted,
		Payload: map[string]string{"scan_id": id},
	})
	return nil
}

// Export writes a stored scan's devices in the named format
func (s *DiscoveryService) Export(ctx context.Context, id, format string, w io.Writer) error {
	exporter, ok := codec.LookupExporter(strings.ToLower(format))
	if !ok {
		return fmt.Errorf("%w: unsupported export format %q", ErrInvalidInput, format)
	}
	scan, err := s.repo.GetScan(ctx, id)
	if err != nil {
		return err
	}
	return exporter.Export(scan.Devices, w)
}

// finalize sanitizes devices, persists them as a scan and announces it
func (s *DiscoveryService) finalize(ctx context.Context, scanID string, source domain.ScanSource, subnet string, devices []domain.Device) (*domain.Scan, error) {
	result, err := topology.Sanitize(devices)
	if err != nil {
		s.publishFailure(scanID, err)
		return nil, err
	}
	if n := result.Repairs.Total(); n > 0 {
		s.logger.Warn("topology repaired",
			zap.String("scan_id", scanID),
			zap.Int("dangling", result.Repairs.Dangling),
			zap.Int("cycles", result.Repairs.Cycles),
			zap.Int("reparented", result.Repairs.Reparented))
	}

	scan := &domain.Scan{
		ID:        scanID,
		Source:    source,
		Subnet:    subnet,
		RootID:    result.RootID,
		CreatedAt: s.now().UTC(),
		Devices:   result.Devices,
	}
	if err := s.repo.SaveScan(ctx, scan); err != nil {
		err = fmt.Errorf("failed to save scan: %w", err)
		s.publishFailure(scanID, err)
		return nil, err
	}

	s.logger.Info("scan stored",
		zap.String("scan_id", scanID),
		zap.String("source", string(source)),
		zap.Int("devices", len(scan.Devices)))
	s.eventBus.Publish(Event{
		Type: EventScanComplete,
		Payload: map[string]any{
			"scan_id":      scanID,
			"source":       source,
			"root_id":      scan.RootID,
			"device_count": len(scan.Devices),
		},
	})
	return scan, nil
}

func (s *DiscoveryService) publishFailure(scanID string, err error) {
	s.logger.Warn("scan failed", zap.String("scan_id", scanID), zap.Error(err))
	s.eventBus.Publish(Event{
		Type:    EventScanFailed,
		Payload: map[string]any{"scan_id": scanID, "error": err.Error()},
	})
}
