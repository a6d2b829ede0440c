// Package repository defines the data access interface for netsketch.
//
// A scan is one discovery run: the sanitized device set it produced plus where
// it came from. Scans are written whole and read whole; the only in-place
// mutation is splicing a single re-probed device back into its scan.
//
// The sqlite subpackage provides the implementation. It migrates its schema on
// open and keeps device order through an explicit position column, so a scan
// read back lists devices exactly as they were saved.
package repository
