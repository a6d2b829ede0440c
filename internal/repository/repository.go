package repository

import (
	"context"
	"errors"

	"netsketch/internal/domain"
)

// ErrNotFound is returned when a scan or device does not exist
var ErrNotFound = errors.New("not found")

// Repository defines the interface for scan persistence
type Repository interface {
	// Read operations
	GetScan(ctx context.Context, id string) (*domain.Scan, error)
	ListScans(ctx context.Context, limit int) ([]domain.ScanSummary, error)

	// Write operations
	SaveScan(ctx context.Context, scan *domain.Scan) error
	UpdateDevice(ctx context.Context, scanID string, device domain.Device) error
	DeleteScan(ctx context.Context, id string) error

	// Close releases resources
	Close() error
}
