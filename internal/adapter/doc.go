// Package adapter holds the components that talk to the outside world on
// behalf of the discovery pipeline.
//
// # Host Prober
//
// Prober sweeps the hosts of a /24 through a Transport. HTTPTransport issues
// a HEAD request per host and reports whether it answered, refused or timed
// out; any answer, even an error status, counts as present. Probes run in
// fixed-width batches so no more than Concurrency requests are in flight,
// and progress is reported after every batch. Local socket exhaustion is
// retried through the retry package and otherwise treated as absence.
//
// Present hosts are classified by address suffix and linked under a single
// root. Past the fan-out threshold a synthetic aggregation switch is placed
// between the root and the rest.
//
// DetectPrefixes lists the /24 networks the host itself is attached to.
//
// # Assistant
//
// Assistant abstracts the generative model used to invent, extract, review,
// trace and optimize topologies. GeminiAssistant calls the Gemini API with
// every call wrapped in retry.Do. OfflineAssistant only parses text, using the
// heuristic ARP parser, and reports ErrAssistantOffline for everything else.
package adapter
