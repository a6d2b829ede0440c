// Package handler implements the HTTP API for netsketch.
//
// ScanHandler wraps a DiscoveryService and exposes every discovery path
// (probe, import, parse, generate, optimize) plus the read side for stored
// scans. Routes are built with chi.
//
// # Response Format
//
// Success responses return JSON data with 200 or 201. Exports are served as
// attachments in the requested format. Error responses return JSON with an
// {error, details} structure and a status derived from the service error:
//
//	invalid input        400
//	unknown scan/device  404
//	structural topology  422
//	assistant transient  503
//	anything else        500
//
// # Live Updates
//
// When a Streamer is supplied, /events serves Server-Sent Events and /ws
// serves the same stream over a WebSocket.
package handler
