package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsketch/internal/domain"
)

func sampleDevices() []domain.Device {
	return []domain.Device{
		{ID: "r1", Address: "10.0.0.1", HardwareAddress: "4c:5e:0c:00:00:01", DisplayName: "Gateway", Vendor: "MikroTik", Kind: domain.KindRouter, State: domain.StateOnline},
		domain.Device{ID: "s1", Address: "10.0.0.10", DisplayName: "NAS", Vendor: "Synology", Kind: domain.KindServer, ParentID: "r1", State: domain.StateWarning}.WithLatency(12),
		{ID: "p1", Address: "10.0.0.11", DisplayName: "Office", Vendor: domain.VendorUnknown, Kind: domain.KindPrinter, ParentID: "r1", State: domain.StateOffline},
	}
}

func TestLookup(t *testing.T) {
	for _, format := range []string{"arp", "text", "json", "yaml", "yml", "ansible"} {
		_, ok := Lookup(format)
		assert.True(t, ok, format)
	}
	_, ok := Lookup("xml")
	assert.False(t, ok)

	_, ok = LookupExporter("arp")
	assert.False(t, ok, "arp is import-only")
	e, ok := LookupExporter("yml")
	require.True(t, ok)
	assert.Equal(t, "yaml", e.Format())
}

func TestJSONExportThenParse(t *testing.T) {
	c := NewJSONCodec()
	var buf bytes.Buffer
	require.NoError(t, c.Export(sampleDevices(), &buf))
	assert.Contains(t, buf.String(), `"parent_id": "r1"`)
	assert.Contains(t, buf.String(), `"type": "printer"`)

	got, err := c.Parse(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleDevices(), got); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONParseBareArrayAndLooseValues(t *testing.T) {
	input := `[{"id":"a","ip":"10.0.0.1","type":"ROUTER","status":"bogus"},{"id":"b","type":"toaster","parent_id":"a"}]`
	got, err := NewJSONCodec().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.KindRouter, got[0].Kind)
	assert.Equal(t, domain.StateOnline, got[0].State)
	assert.Equal(t, domain.KindPC, got[1].Kind)

	_, err = NewJSONCodec().Parse(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestJSONParseRejectsOtherShapes(t *testing.T) {
	for _, input := range []string{`{"network":[{"id":"r"}]}`, `{}`, `null`, ` null `} {
		t.Run(input, func(t *testing.T) {
			_, err := NewJSONCodec().Parse(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrNoDeviceList)
		})
	}

	got, err := NewJSONCodec().Parse(strings.NewReader(`{"devices":null}`))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestJSONParseReportsArrayFieldError(t *testing.T) {
	_, err := NewJSONCodec().Parse(strings.NewReader(`  [{"id":"a","latency_ms":"12"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device array")
	assert.Contains(t, err.Error(), "latency_ms")
	assert.NotContains(t, err.Error(), "jsonDocument")
}

func TestYAMLExportThenParse(t *testing.T) {
	c := NewYAMLCodec()
	var buf bytes.Buffer
	require.NoError(t, c.Export(sampleDevices(), &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "devices:"))

	got, err := c.Parse(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleDevices(), got); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}

	empty, err := c.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAnsibleExportThenParse(t *testing.T) {
	c := NewAnsibleCodec()
	var buf bytes.Buffer
	require.NoError(t, c.Export(sampleDevices(), &buf))
	out := buf.String()
	assert.Contains(t, out, "routers:")
	assert.Contains(t, out, "printers:")
	assert.Contains(t, out, "ansible_host: 10.0.0.10")

	got, err := c.Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, got, 3)

	byID := map[string]domain.Device{}
	for _, d := range got {
		byID[d.ID] = d
	}
	assert.Equal(t, domain.KindRouter, byID["r1"].Kind)
	assert.Equal(t, "Gateway", byID["r1"].DisplayName)
	assert.Equal(t, domain.KindServer, byID["s1"].Kind)
	assert.Equal(t, "r1", byID["s1"].ParentID)
	assert.Equal(t, domain.StateOffline, byID["p1"].State)
}

func TestAnsibleParseInfersKindsAndAttaches(t *testing.T) {
	input := `
all:
  children:
    network:
      hosts:
        edge:
          ansible_host: 192.168.1.1
    webservers:
      hosts:
        web1:
          ansible_host: 192.168.1.10
        web2:
          ansible_host: 192.168.1.11
          role: storage
  hosts:
    laptop:
      ansible_host: 192.168.1.50
`
	got, err := NewAnsibleCodec().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "edge", got[0].ID)
	assert.Equal(t, domain.KindRouter, got[0].Kind)
	assert.True(t, got[0].IsRoot())
	for _, d := range got[1:] {
		assert.Equal(t, "edge", d.ParentID, d.ID)
	}
	assert.Equal(t, domain.KindServer, got[1].Kind)
	assert.Equal(t, "laptop", got[3].ID)
	assert.Equal(t, domain.KindPC, got[3].Kind)
}
