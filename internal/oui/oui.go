// Package oui resolves MAC address prefixes to manufacturer names.
//
// Resolution is best-effort: the embedded table covers common home and lab
// vendors only, and locally administered or synthetic addresses always
// resolve to "Unknown".
package oui

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"

	"netsketch/internal/domain"
)

//go:embed data/oui.json
var embeddedDB []byte

// DB maps normalized 6-hex-digit prefixes to vendor names
type DB struct {
	vendors map[string]string
}

var (
	defaultOnce sync.Once
	defaultDB   *DB
)

// Default returns the embedded table, loading it once. A table that fails to
// decode yields an empty DB, so lookups degrade to "Unknown".
func Default() *DB {
	defaultOnce.Do(func() {
		db, err := Load(embeddedDB)
		if err != nil {
			db = &DB{vendors: map[string]string{}}
		}
		defaultDB = db
	})
	return defaultDB
}

// Load parses a JSON object of prefix -> vendor
func Load(data []byte) (*DB, error) {
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	normalized := make(map[string]string, len(m))
	for k, v := range m {
		normalized[normalizePrefix(k)] = strings.TrimSpace(v)
	}
	return &DB{vendors: normalized}, nil
}

// Lookup returns the vendor for mac, or domain.VendorUnknown
func (db *DB) Lookup(mac string) string {
	if db == nil {
		return domain.VendorUnknown
	}
	if vendor, ok := db.vendors[normalizePrefix(mac)]; ok && vendor != "" {
		return vendor
	}
	return domain.VendorUnknown
}

// Lookup resolves mac against the embedded table
func Lookup(mac string) string {
	return Default().Lookup(mac)
}

// Len returns the number of known prefixes
func (db *DB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.vendors)
}

func normalizePrefix(v string) string {
	replacer := strings.NewReplacer(":", "", "-", "", ".", "")
	v = strings.ToUpper(strings.TrimSpace(replacer.Replace(v)))
	if len(v) >= 6 {
		return v[:6]
	}
	return v
}
