// Package domain defines the core domain types for the netsketch topology pipeline.
//
// This package contains the value records that flow through discovery, sanitization
// and layout: devices, discovery runs (scans) and the rooted tree arena handed to
// hierarchical layout consumers.
//
// # Core Types
//
// Device represents a discovered or synthesized network node (router, switch,
// endpoint) with an optional parent reference forming an implicit tree.
//
// Scan represents one discovery run. A re-scan or re-import produces a new Scan;
// devices are never mutated in place except for the single-device probe
// refinement, which splices an updated copy by ID.
//
// Tree is an arena of devices with integer child indices. It is built only from
// a sanitized device set (exactly one root, no dangling references, no cycles).
//
// # Collaborator Types
//
// Hop and Optimization describe the results of the trace and optimize calls of
// the AI assistant.
//
// # Design Principles
//
// - Immutable value records
// - No database or external dependencies
// - Closed enumerations with tolerant parsing
package domain
