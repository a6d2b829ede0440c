package sqlite

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"netsketch/internal/domain"
	"netsketch/internal/repository"
)

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func sampleScan(id string, created time.Time) *domain.Scan {
	return &domain.Scan{
		ID:        id,
		Source:    domain.ScanSourceProbe,
		Subnet:    "192.168.1.",
		RootID:    "r",
		CreatedAt: created,
		Devices: []domain.Device{
			domain.Device{ID: "r", Address: "192.168.1.1", HardwareAddress: "02:00:00:00:00:01", DisplayName: "Gateway",
				Vendor: domain.VendorGeneric, Kind: domain.KindRouter, State: domain.StateOnline}.WithLatency(3.5),
			{ID: "sw", Address: "192.168.1.0", DisplayName: "Virtual Switch", Vendor: domain.VendorGeneric,
				Kind: domain.KindSwitch, ParentID: "r", State: domain.StateOnline},
			{ID: "b", Address: "192.168.1.9", Kind: domain.KindServer, ParentID: "sw", State: domain.StateWarning},
			{ID: "a", Address: "192.168.1.50", Kind: domain.KindPC, ParentID: "sw", State: domain.StateOffline},
		},
	}
}

// ============================================================================
// Scan Tests
// ============================================================================

func TestSaveAndGetScan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	want := sampleScan("scan-1", created)
	assertNoError(t, repo.SaveScan(ctx, want))

	got, err := repo.GetScan(ctx, "scan-1")
	assertNoError(t, err)

	assertEqual(t, want.ID, got.ID)
	assertEqual(t, want.Source, got.Source)
	assertEqual(t, want.Subnet, got.Subnet)
	assertEqual(t, want.RootID, got.RootID)
	assertEqual(t, created, got.CreatedAt)
	assertEqual(t, want.Devices, got.Devices)
}

func TestGetScanNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetScan(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveScanDuplicateRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveScan(ctx, sampleScan("dup", time.Now())))

	bad := sampleScan("other", time.Now())
	bad.Devices = append(bad.Devices, bad.Devices[0])
	if err := repo.SaveScan(ctx, bad); err == nil {
		t.Fatal("expected duplicate device id to fail")
	}
	if _, err := repo.GetScan(ctx, "other"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("failed save should leave no scan behind, got %v", err)
	}

	if err := repo.SaveScan(ctx, sampleScan("dup", time.Now())); err == nil {
		t.Fatal("expected duplicate scan id to fail")
	}
}

func TestListScans(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assertNoError(t, repo.SaveScan(ctx, sampleScan("old", base)))
	newer := sampleScan("new", base.Add(time.Hour))
	newer.Devices = newer.Devices[:1]
	newer.Source = domain.ScanSourceParse
	assertNoError(t, repo.SaveScan(ctx, newer))

	summaries, err := repo.ListScans(ctx, 0)
	assertNoError(t, err)
	assertEqual(t, 2, len(summaries))
	assertEqual(t, "new", summaries[0].ID)
	assertEqual(t, 1, summaries[0].DeviceCount)
	assertEqual(t, domain.ScanSourceParse, summaries[0].Source)
	assertEqual(t, "old", summaries[1].ID)
	assertEqual(t, 4, summaries[1].DeviceCount)

	limited, err := repo.ListScans(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, 1, len(limited))
	assertEqual(t, "new", limited[0].ID)
}

func TestListScansEmpty(t *testing.T) {
	repo := newTestRepo(t)

	summaries, err := repo.ListScans(context.Background(), 10)
	assertNoError(t, err)
	if summaries == nil || len(summaries) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", summaries)
	}
}

// ============================================================================
// Device Tests
// ============================================================================

func TestUpdateDeviceKeepsPosition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assertNoError(t, repo.SaveScan(ctx, sampleScan("scan-1", time.Now())))

	updated := domain.Device{ID: "b", Address: "192.168.1.9", Kind: domain.KindServer, ParentID: "sw",
		State: domain.StateOnline}.WithLatency(12)
	assertNoError(t, repo.UpdateDevice(ctx, "scan-1", updated))

	got, err := repo.GetScan(ctx, "scan-1")
	assertNoError(t, err)
	assertEqual(t, "b", got.Devices[2].ID)
	assertEqual(t, domain.StateOnline, got.Devices[2].State)
	assertEqual(t, 12.0, got.Devices[2].Latency())

	err = repo.UpdateDevice(ctx, "scan-1", domain.Device{ID: "ghost"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteScanCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assertNoError(t, repo.SaveScan(ctx, sampleScan("scan-1", time.Now())))

	assertNoError(t, repo.DeleteScan(ctx, "scan-1"))

	var count int
	assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count))
	assertEqual(t, 0, count)

	if err := repo.DeleteScan(ctx, "scan-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFileDatabaseReopen(t *testing.T) {
	path := t.TempDir() + "/netsketch.db"
	ctx := context.Background()

	repo, err := New(path)
	assertNoError(t, err)
	assertNoError(t, repo.SaveScan(ctx, sampleScan("persisted", time.Now())))
	assertNoError(t, repo.Close())

	repo, err = New(path)
	assertNoError(t, err)
	defer repo.Close()

	got, err := repo.GetScan(ctx, "persisted")
	assertNoError(t, err)
	assertEqual(t, 4, len(got.Devices))
}
