package codec

import (
	"errors"
	"fmt"
	"io"

	"netsketch/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlDocument represents the YAML structure for device data
type yamlDocument struct {
	Devices []domain.Device `yaml:"devices"`
}

// Parse imports a device list from YAML
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.Device, error) {
	var doc yamlDocument
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []domain.Device{}, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nonNil(doc.Devices), nil
}

// Export exports a device list to YAML
func (c *YAMLCodec) Export(devices []domain.Device, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yamlDocument{Devices: nonNil(devices)}); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
