// Package service implements the discovery pipeline for netsketch.
//
// DiscoveryService coordinates the HTTP handlers and CLI with the prober, the
// assistant, the codecs and the repository. Every discovery path (probe,
// import, AI generation, pasted text, optimization) ends the same way: the
// device set is sanitized into a single rooted tree, persisted as a scan and
// announced on the EventBus.
//
// # Event System
//
// The EventBus fans events out to subscribers (the SSE/WebSocket hub) without
// blocking publishers. Event types cover the scan lifecycle: started,
// progress, complete, failed, deleted, refreshed, and single-device updates.
//
// # Monitoring
//
// RefreshScan re-probes every addressable device of a stored scan. Monitor
// runs RefreshScan on a fixed interval for each watched scan and drops scans
// that have since been deleted.
//
// # Errors
//
// Lookups of unknown scans or devices wrap ErrNotFound. Bad caller input wraps
// ErrInvalidInput. Structural failures come from the topology package and
// transient upstream failures from the retry package; both pass through
// unchanged so callers can tell them apart.
package service
