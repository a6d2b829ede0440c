// Package codec converts device sets to and from text formats.
//
// Importers never fail on individual unrecognizable records; they skip them.
// Output of any importer still has to go through topology.Sanitize before use.
package codec

import (
	"io"
	"sort"

	"netsketch/internal/domain"
)

// Importer parses a device set from a text format
type Importer interface {
	Parse(r io.Reader) ([]domain.Device, error)
	Format() string
}

// Exporter writes a device set in a text format
type Exporter interface {
	Export(devices []domain.Device, w io.Writer) error
	Format() string
}

// ContentType returns the MIME type served for an exporter format
func ContentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	default:
		return "application/x-yaml"
	}
}

// Lookup returns the importer registered for format
func Lookup(format string) (Importer, bool) {
	switch format {
	case "arp", "text":
		return NewARPCodec(), true
	case "json":
		return NewJSONCodec(), true
	case "yaml", "yml":
		return NewYAMLCodec(), true
	case "ansible", "ansible-inventory":
		return NewAnsibleCodec(), true
	}
	return nil, false
}

// LookupExporter returns the exporter registered for format
func LookupExporter(format string) (Exporter, bool) {
	switch format {
	case "json":
		return NewJSONCodec(), true
	case "yaml", "yml":
		return NewYAMLCodec(), true
	case "ansible", "ansible-inventory":
		return NewAnsibleCodec(), true
	}
	return nil, false
}

// Formats lists the importer formats in a stable order
func Formats() []string {
	f := []string{"arp", "json", "yaml", "ansible"}
	sort.Strings(f)
	return f
}
