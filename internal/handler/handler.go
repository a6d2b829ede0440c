package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"netsketch/internal/adapter"
	"netsketch/internal/codec"
	"netsketch/internal/retry"
	"netsketch/internal/service"
	"netsketch/internal/topology"
)

const (
	// maxBodyBytes caps uploaded imports and pasted text
	maxBodyBytes = 8 << 20
	defaultLimit = 50
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Streamer serves live event streams
type Streamer interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// ScanHandler exposes the discovery service over HTTP
type ScanHandler struct {
	svc     *service.DiscoveryService
	events  Streamer
	monitor *service.Monitor
	logger  *zap.Logger
}

// New creates a new scan handler. events may be nil, in which case the
// streaming routes are not mounted.
func New(svc *service.DiscoveryService, events Streamer, logger *zap.Logger) *ScanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanHandler{svc: svc, events: events, logger: logger.Named("http")}
}

// WithMonitor mounts the monitor routes
func (h *ScanHandler) WithMonitor(m *service.Monitor) *ScanHandler {
	h.monitor = m
	return h
}

// Routes builds the full routing tree
func (h *ScanHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(api chi.Router) {
		api.Get("/formats", h.ListFormats)
		api.Get("/prefixes", h.ListPrefixes)
		api.Post("/trace", h.Trace)

		api.Route("/scans", func(scans chi.Router) {
			scans.Get("/", h.ListScans)
			scans.Post("/probe", h.ProbeSubnet)
			scans.Post("/import", h.Import)
			scans.Post("/generate", h.Generate)
			scans.Post("/parse", h.ParseText)

			scans.Route("/{id}", func(scan chi.Router) {
				scan.Get("/", h.GetScan)
				scan.Delete("/", h.DeleteScan)
				scan.Get("/tree", h.Tree)
				scan.Get("/export", h.Export)
				scan.Post("/analyze", h.Analyze)
				scan.Post("/optimize", h.Optimize)
				scan.Post("/devices/{deviceID}/probe", h.ProbeDevice)
				scan.Post("/refresh", h.RefreshScan)
				if h.monitor != nil {
					scan.Put("/monitor", h.WatchScan)
					scan.Delete("/monitor", h.UnwatchScan)
				}
			})
		})

		if h.monitor != nil {
			api.Get("/monitor", h.ListWatched)
		}
	})

	if h.events != nil {
		r.Get("/events", h.events.ServeHTTP)
		r.Get("/ws", h.events.ServeWS)
	}
	return r
}

// Health reports liveness
func (h *ScanHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ListFormats returns the supported import and export formats
func (h *ScanHandler) ListFormats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string][]string{"formats": codec.Formats()}, http.StatusOK)
}

// ListPrefixes returns the /24 networks the server itself is attached to
func (h *ScanHandler) ListPrefixes(w http.ResponseWriter, r *http.Request) {
	prefixes, err := adapter.DetectPrefixes()
	if err != nil {
		h.writeServiceError(w, "Failed to detect local networks", err)
		return
	}
	if prefixes == nil {
		prefixes = []adapter.LocalPrefix{}
	}
	h.writeJSON(w, map[string][]adapter.LocalPrefix{"prefixes": prefixes}, http.StatusOK)
}

// ProbeRequest is the body of POST /api/scans/probe
type ProbeRequest struct {
	Prefix string `json:"prefix"`
}

// ProbeSubnet sweeps a /24 and stores the result
func (h *ScanHandler) ProbeSubnet(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if !h.decode(w, r, &req) {
		return
	}
	scan, err := h.svc.ProbeSubnet(r.Context(), req.Prefix)
	if err != nil {
		h.writeServiceError(w, "Failed to probe subnet", err)
		return
	}
	h.writeJSON(w, scan, http.StatusCreated)
}

// Import stores devices read from the request body. The format comes from
// the format query parameter and defaults to json.
func (h *ScanHandler) Import(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	scan, err := h.svc.Import(r.Context(), format, http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeServiceError(w, "Failed to import", err)
		return
	}
	h.writeJSON(w, scan, http.StatusCreated)
}

// GenerateRequest is the body of POST /api/scans/generate
type GenerateRequest struct {
	Hint string `json:"hint"`
}

// Generate asks the assistant for a synthetic network
func (h *ScanHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	scan, err := h.svc.Generate(r.Context(), req.Hint)
	if err != nil {
		h.writeServiceError(w, "Failed to generate network", err)
		return
	}
	h.writeJSON(w, scan, http.StatusCreated)
}

// ParseRequest is the body of POST /api/scans/parse
type ParseRequest struct {
	Text string `json:"text"`
}

// ParseText extracts devices from pasted text
func (h *ScanHandler) ParseText(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !h.decode(w, r, &req) {
		return
	}
	scan, err := h.svc.ParseText(r.Context(), req.Text)
	if err != nil {
		h.writeServiceError(w, "Failed to parse text", err)
		return
	}
	h.writeJSON(w, scan, http.StatusCreated)
}

// ListScans returns stored scan summaries
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", raw, http.StatusBadRequest)
			return
		}
		limit = n
	}
	scans, err := h.svc.ListScans(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "Failed to list scans", err)
		return
	}
	h.writeJSON(w, scans, http.StatusOK)
}

// GetScan returns a stored scan
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.svc.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to get scan", err)
		return
	}
	h.writeJSON(w, scan, http.StatusOK)
}

// DeleteScan removes a stored scan
func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteScan(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, "Failed to delete scan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tree returns the nested device tree of a stored scan
func (h *ScanHandler) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.Tree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to build tree", err)
		return
	}
	h.writeJSON(w, tree, http.StatusOK)
}

// Export writes a stored scan in the requested format as an attachment
func (h *ScanHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}

	// Render into memory first so failures still produce a JSON error.
	var buf strings.Builder
	if err := h.svc.Export(r.Context(), id, format, &buf); err != nil {
		h.writeServiceError(w, "Failed to export scan", err)
		return
	}

	w.Header().Set("Content-Type", codec.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename="+id+"."+extension(format))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, buf.String()); err != nil {
		h.logger.Debug("export write failed", zap.Error(err))
	}
}

// Analyze returns the assistant's review of a stored scan
func (h *ScanHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.svc.Analyze(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to analyze scan", err)
		return
	}
	h.writeJSON(w, map[string]string{"analysis": analysis}, http.StatusOK)
}

// Optimize stores the assistant's proposed topology as a new scan
func (h *ScanHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Optimize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to optimize scan", err)
		return
	}
	h.writeJSON(w, result, http.StatusCreated)
}

// ProbeDevice re-probes a single device of a stored scan
func (h *ScanHandler) ProbeDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.svc.ProbeDevice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "deviceID"))
	if err != nil {
		h.writeServiceError(w, "Failed to probe device", err)
		return
	}
	h.writeJSON(w, device, http.StatusOK)
}

// RefreshScan re-probes every device of a stored scan
func (h *ScanHandler) RefreshScan(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RefreshScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to refresh scan", err)
		return
	}
	h.writeJSON(w, result, http.StatusOK)
}

// WatchScan adds a scan to the periodic refresh set
func (h *ScanHandler) WatchScan(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Watch(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, "Failed to watch scan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnwatchScan removes a scan from the periodic refresh set
func (h *ScanHandler) UnwatchScan(w http.ResponseWriter, r *http.Request) {
	h.monitor.Unwatch(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// ListWatched returns the ids of watched scans
func (h *ScanHandler) ListWatched(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string][]string{"scans": h.monitor.Watched()}, http.StatusOK)
}

// TraceRequest is the body of POST /api/trace
type TraceRequest struct {
	Target string `json:"target"`
}

// Trace returns a simulated route to the target
func (h *ScanHandler) Trace(w http.ResponseWriter, r *http.Request) {
	var req TraceRequest
	if !h.decode(w, r, &req) {
		return
	}
	hops, err := h.svc.Trace(r.Context(), req.Target)
	if err != nil {
		h.writeServiceError(w, "Failed to trace route", err)
		return
	}
	h.writeJSON(w, map[string]any{"target": req.Target, "hops": hops}, http.StatusOK)
}

// Helper methods

func (h *ScanHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, topology.ErrStructural):
		return http.StatusUnprocessableEntity
	case errors.Is(err, adapter.ErrAssistantOffline), retry.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ScanHandler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	h.writeError(w, msg, err.Error(), status)
}

func (h *ScanHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("failed to encode JSON", zap.Error(err))
	}
}

func (h *ScanHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

func extension(format string) string {
	switch format {
	case "yaml", "yml":
		return "yaml"
	case "ansible", "ansible-inventory":
		return "ansible.yml"
	default:
		return format
	}
}

// requestLogger logs one line per request. The wrapped writer keeps the
// Flusher and Hijacker of the underlying writer so streams still work.
func (h *ScanHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// recoverer converts a panic into a JSON 500
func (h *ScanHandler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				h.writeError(w, "Internal server error", "", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
