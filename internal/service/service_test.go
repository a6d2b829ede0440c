package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsketch/internal/adapter"
	"netsketch/internal/domain"
	"netsketch/internal/repository/sqlite"
	"netsketch/internal/retry"
	"netsketch/internal/topology"
)

type fakeProber struct {
	devices  []domain.Device
	err      error
	progress []adapter.Progress
	probed   domain.Device
}

func (f *fakeProber) Scan(_ context.Context, prefix string, progress func(adapter.Progress)) ([]domain.Device, error) {
	if _, err := adapter.ParsePrefix(prefix); err != nil {
		return nil, err
	}
	for _, p := range f.progress {
		progress(p)
	}
	return f.devices, f.err
}

func (f *fakeProber) ProbeDevice(_ context.Context, d domain.Device) (domain.Device, error) {
	if f.err != nil {
		return d, f.err
	}
	out := d.WithLatency(4)
	out.State = domain.StateOffline
	f.probed = out
	return out, nil
}

type fakeAssistant struct {
	adapter.OfflineAssistant
	devices  []domain.Device
	opt      domain.Optimization
	analysis string
	err      error
}

func (f *fakeAssistant) Generate(context.Context, string) ([]domain.Device, error) {
	return f.devices, f.err
}

func (f *fakeAssistant) ParseText(context.Context, string) ([]domain.Device, error) {
	return f.devices, f.err
}

func (f *fakeAssistant) Analyze(context.Context, []domain.Device) (string, error) {
	return f.analysis, f.err
}

func (f *fakeAssistant) Optimize(context.Context, []domain.Device) (domain.Optimization, error) {
	return f.opt, f.err
}

type harness struct {
	svc      *DiscoveryService
	prober   *fakeProber
	ai       *fakeAssistant
	events   chan Event
	sequence int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	h := &harness{
		prober: &fakeProber{},
		ai:     &fakeAssistant{},
		events: make(chan Event, 64),
	}
	bus := NewEventBus()
	bus.Subscribe(h.events)

	h.svc = NewDiscoveryService(repo, h.prober, h.ai, bus, nil)
	h.svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	h.svc.newID = func() string {
		h.sequence++
		return fmt.Sprintf("scan-%d", h.sequence)
	}
	return h
}

func (h *harness) drain() []EventType {
	var types []EventType
	for {
		select {
		case e := <-h.events:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func dev(id, parent string, kind domain.Kind) domain.Device {
	return domain.Device{ID: id, Address: "10.0.0." + id, Kind: kind, ParentID: parent, State: domain.StateOnline}
}

func TestProbeSubnetPersistsSanitizedScan(t *testing.T) {
	h := newHarness(t)
	h.prober.devices = []domain.Device{dev("1", "", domain.KindRouter), dev("2", "", domain.KindPC), dev("3", "gone", domain.KindPC)}
	h.prober.progress = []adapter.Progress{{Percent: 50, Found: 1}, {Percent: 100, Found: 3}}

	scan, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", scan.ID)
	assert.Equal(t, "1", scan.RootID)
	assert.Equal(t, domain.ScanSourceProbe, scan.Source)
	for _, d := range scan.Devices[1:] {
		assert.Equal(t, "1", d.ParentID)
	}

	stored, err := h.svc.GetScan(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, scan.Devices, stored.Devices)

	assert.Equal(t, []EventType{EventScanStarted, EventScanProgress, EventScanProgress, EventScanComplete}, h.drain())
}

func TestProbeSubnetInvalidPrefix(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ProbeSubnet(context.Background(), "224.0.0.")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, adapter.ErrInvalidPrefix)
	assert.Equal(t, []EventType{EventScanStarted, EventScanFailed}, h.drain())
}

func TestProbeSubnetEmptyIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.prober.devices = []domain.Device{}

	scan, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)
	assert.Empty(t, scan.Devices)
	assert.Empty(t, scan.RootID)

	tree, err := h.svc.Tree(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Nil(t, tree)
}

func TestProbeSubnetCancelled(t *testing.T) {
	h := newHarness(t)
	h.prober.err = context.Canceled

	_, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	assert.ErrorIs(t, err, context.Canceled)

	list, err := h.svc.ListScans(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGenerateStructuralFailure(t *testing.T) {
	h := newHarness(t)
	h.ai.devices = []domain.Device{dev("a", "b", domain.KindPC), dev("b", "a", domain.KindPC)}

	_, err := h.svc.Generate(context.Background(), "")
	assert.ErrorIs(t, err, topology.ErrStructural)
	assert.Equal(t, []EventType{EventScanStarted, EventScanFailed}, h.drain())
}

func TestGenerateTransientFailurePassesThrough(t *testing.T) {
	h := newHarness(t)
	h.ai.err = &retry.ExhaustedError{Attempts: 4, Err: &retry.Failure{Status: 429}}

	_, err := h.svc.Generate(context.Background(), "")
	assert.True(t, retry.IsTransient(err))
}

func TestParseTextFallsBackToHeuristicParser(t *testing.T) {
	h := newHarness(t)
	h.ai.err = errors.New("model unavailable")

	scan, err := h.svc.ParseText(context.Background(), "192.168.1.1 aa-bb-cc-dd-ee-ff dynamic\n192.168.1.50 11:22:33:44:55:66 static")
	require.NoError(t, err)
	require.Len(t, scan.Devices, 2)
	assert.Equal(t, domain.ScanSourceParse, scan.Source)
	assert.Equal(t, "arp-192-168-1-1", scan.RootID)

	_, err = h.svc.ParseText(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestImport(t *testing.T) {
	h := newHarness(t)

	scan, err := h.svc.Import(context.Background(), "JSON", strings.NewReader(`[
		{"id":"pc","type":"pc","parent_id":"sw"},
		{"id":"sw","type":"switch"},
		{"id":"gw","type":"router"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, "gw", scan.RootID, "router wins among candidate roots")

	_, err = h.svc.Import(context.Background(), "xml", strings.NewReader("<x/>"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.svc.Import(context.Background(), "json", strings.NewReader("{"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOptimizeStoresNewScan(t *testing.T) {
	h := newHarness(t)
	h.prober.devices = []domain.Device{dev("1", "", domain.KindRouter), dev("2", "1", domain.KindPC)}
	original, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)

	h.ai.opt = domain.Optimization{
		Explanation: "insert a switch",
		Devices:     []domain.Device{dev("1", "", domain.KindRouter), dev("s", "1", domain.KindSwitch), dev("2", "s", domain.KindPC)},
	}
	res, err := h.svc.Optimize(context.Background(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, "insert a switch", res.Explanation)
	assert.Equal(t, domain.ScanSourceOptimize, res.Scan.Source)
	assert.Equal(t, "10.0.0.", res.Scan.Subnet)
	assert.NotEqual(t, original.ID, res.Scan.ID)

	list, err := h.svc.ListScans(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = h.svc.Optimize(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProbeDeviceSplicesUpdate(t *testing.T) {
	h := newHarness(t)
	h.prober.devices = []domain.Device{dev("1", "", domain.KindRouter), dev("2", "1", domain.KindPC)}
	scan, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)
	h.drain()

	updated, err := h.svc.ProbeDevice(context.Background(), scan.ID, "2")
	require.NoError(t, err)
	assert.Equal(t, domain.StateOffline, updated.State)

	stored, err := h.svc.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOffline, stored.Devices[1].State)
	assert.Equal(t, 4.0, stored.Devices[1].Latency())
	assert.Equal(t, []EventType{EventDeviceUpdated}, h.drain())

	_, err = h.svc.ProbeDevice(context.Background(), scan.ID, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTreeExportDelete(t *testing.T) {
	h := newHarness(t)
	h.prober.devices = []domain.Device{dev("1", "", domain.KindRouter), dev("2", "1", domain.KindPC), dev("3", "2", domain.KindPC)}
	scan, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)

	tree, err := h.svc.Tree(context.Background(), scan.ID)
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, "1", tree.ID)
	require.Len(t, tree.Children, 1)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "3", tree.Children[0].Children[0].ID)

	var buf bytes.Buffer
	require.NoError(t, h.svc.Export(context.Background(), scan.ID, "yaml", &buf))
	assert.Contains(t, buf.String(), "devices:")
	assert.ErrorIs(t, h.svc.Export(context.Background(), scan.ID, "arp", &buf), ErrInvalidInput)

	require.NoError(t, h.svc.DeleteScan(context.Background(), scan.ID))
	_, err = h.svc.GetScan(context.Background(), scan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, h.svc.DeleteScan(context.Background(), scan.ID), ErrNotFound)
}

func TestAnalyzeAndTrace(t *testing.T) {
	h := newHarness(t)
	h.prober.devices = []domain.Device{dev("1", "", domain.KindRouter)}
	scan, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)

	h.ai.analysis = "looks fine"
	text, err := h.svc.Analyze(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "looks fine", text)

	_, err = h.svc.Trace(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.svc.Trace(context.Background(), "example.com")
	assert.ErrorIs(t, err, adapter.ErrAssistantOffline)
}

func TestSetProber(t *testing.T) {
	h := newHarness(t)
	replacement := &fakeProber{devices: []domain.Device{dev("9", "", domain.KindServer)}}
	h.svc.SetProber(replacement)

	scan, err := h.svc.ProbeSubnet(context.Background(), "10.0.0.")
	require.NoError(t, err)
	assert.Equal(t, "9", scan.RootID)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(ch)
	bus.Publish(Event{Type: EventScanDeleted})
	bus.Publish(Event{Type: EventScanDeleted}) // dropped, buffer full
	assert.Len(t, ch, 1)

	<-ch
	bus.Unsubscribe(ch)
	bus.Publish(Event{Type: EventScanDeleted})
	assert.Len(t, ch, 0)
}
