package adapter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"netsketch/internal/retry"
)

// Outcome is the observable result of a single host probe
type Outcome int

const (
	// Responded means an HTTP response of any status arrived before the deadline.
	Responded Outcome = iota
	// Refused means the remote stack answered without HTTP (reset, refusal).
	Refused
	// TimedOut means nothing answered before the deadline. The host is absent.
	TimedOut
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case Responded:
		return "responded"
	case Refused:
		return "refused"
	default:
		return "timed_out"
	}
}

// Transport issues one presence probe against url. The deadline is carried by
// ctx. An error is returned only for local conditions worth retrying, already
// normalized as a *retry.Failure; every remote outcome is folded into Outcome.
type Transport interface {
	Probe(ctx context.Context, url string) (Outcome, time.Duration, error)
}

// HTTPTransport probes hosts with HEAD requests and never follows redirects
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a probe transport without connection reuse
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
				DialContext: (&net.Dialer{
					KeepAlive: -1,
				}).DialContext,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe implements Transport
func (t *HTTPTransport) Probe(ctx context.Context, url string) (Outcome, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return TimedOut, 0, err
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	elapsed := time.Since(start)
	if err == nil {
		resp.Body.Close()
		return Responded, elapsed, nil
	}

	return classifyProbeError(ctx, err, elapsed)
}

func classifyProbeError(ctx context.Context, err error, elapsed time.Duration) (Outcome, time.Duration, error) {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return TimedOut, elapsed, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimedOut, elapsed, nil
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.ENOBUFS) {
		return TimedOut, elapsed, &retry.Failure{
			Message: "RESOURCE_EXHAUSTED: local socket limit reached",
			Err:     err,
		}
	}
	return Refused, elapsed, nil
}
