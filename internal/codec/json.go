package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"netsketch/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ErrNoDeviceList is returned for JSON that is neither a device array nor an
// object carrying a devices key
var ErrNoDeviceList = errors.New("JSON holds no device list")

// jsonDocument is the {"devices": [...]} export shape
type jsonDocument struct {
	Devices []domain.Device `json:"devices"`
}

// Parse imports a device list from JSON, either a bare array or an object with
// a devices key. Any other document is rejected rather than read as empty.
func (c *JSONCodec) Parse(r io.Reader) ([]domain.Device, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var devices []domain.Device
		if err := json.Unmarshal(data, &devices); err != nil {
			return nil, fmt.Errorf("failed to parse JSON device array: %w", err)
		}
		return nonNil(devices), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	raw, ok := fields["devices"]
	if !ok {
		return nil, ErrNoDeviceList
	}
	var devices []domain.Device
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("failed to parse JSON devices: %w", err)
	}
	return nonNil(devices), nil
}

// Export exports a device list to JSON
func (c *JSONCodec) Export(devices []domain.Device, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(jsonDocument{Devices: nonNil(devices)}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

func nonNil(devices []domain.Device) []domain.Device {
	if devices == nil {
		return []domain.Device{}
	}
	return devices
}
