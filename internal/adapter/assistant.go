package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"netsketch/internal/codec"
	"netsketch/internal/domain"
	"netsketch/internal/retry"
	"netsketch/internal/topology"
)

// ErrAssistantOffline is returned by operations that need a remote model
var ErrAssistantOffline = errors.New("assistant unavailable in offline mode")

// DefaultModel is the model used when none is configured
const DefaultModel = "gemini-2.5-flash"

// Assistant produces and reviews device sets with a generative model.
// Every device list it returns still has to be sanitized by the caller.
type Assistant interface {
	// Generate invents a plausible home or office network, optionally steered by hint
	Generate(ctx context.Context, hint string) ([]domain.Device, error)
	// ParseText extracts devices from pasted command output
	ParseText(ctx context.Context, text string) ([]domain.Device, error)
	// Analyze returns a short security and health review of devices
	Analyze(ctx context.Context, devices []domain.Device) (string, error)
	// Trace simulates a route to target
	Trace(ctx context.Context, target string) ([]domain.Hop, error)
	// Optimize proposes an improved topology for devices
	Optimize(ctx context.Context, devices []domain.Device) (domain.Optimization, error)
}

// AssistantConfig selects and configures the assistant
type AssistantConfig struct {
	// Offline forces the heuristic assistant even when a key is present
	Offline bool
	APIKey  string
	Model   string
	Retry   retry.Policy
}

// NewAssistant returns a Gemini-backed assistant, or the offline assistant when
// the config is offline or carries no API key.
func NewAssistant(ctx context.Context, cfg AssistantConfig, logger *zap.Logger) (Assistant, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Offline || cfg.APIKey == "" {
		logger.Info("assistant running offline", zap.Bool("forced", cfg.Offline))
		return NewOfflineAssistant(), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewGeminiAssistant(client.Models, cfg, logger), nil
}

// contentGenerator is the subset of *genai.Models the assistant calls
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAssistant implements Assistant over the Gemini API
type GeminiAssistant struct {
	models contentGenerator
	model  string
	policy retry.Policy
	logger *zap.Logger
}

// NewGeminiAssistant creates an assistant over models
func NewGeminiAssistant(models contentGenerator, cfg AssistantConfig, logger *zap.Logger) *GeminiAssistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAssistant{
		models: models,
		model:  model,
		policy: cfg.Retry,
		logger: logger.Named("assistant"),
	}
}

const deviceSchemaHint = `Respond with JSON {"devices": [...]}. Each device has id, ip, mac, name, vendor, ` +
	`type (router|switch|pc|server|printer|mobile|iot|cloud), parent_id (id of the upstream device, ` +
	`empty for the single root), status (online|offline|warning) and latency_ms.`

// Generate implements Assistant
func (a *GeminiAssistant) Generate(ctx context.Context, hint string) ([]domain.Device, error) {
	prompt := "Invent a realistic small home or office network of 8 to 15 devices with one router as root."
	if hint = strings.TrimSpace(hint); hint != "" {
		prompt += " Follow this description: " + hint
	}
	text, err := a.generate(ctx, "generate", prompt+"\n"+deviceSchemaHint, true)
	if err != nil {
		return nil, err
	}
	return decodeDevices(text)
}

// ParseText implements Assistant
func (a *GeminiAssistant) ParseText(ctx context.Context, raw string) ([]domain.Device, error) {
	prompt := "Extract every network device from this command output (arp -a, ip neigh, DHCP lease table or similar). " +
		"Infer type and vendor where possible and link devices under the gateway.\n" + deviceSchemaHint + "\n\n" + raw
	text, err := a.generate(ctx, "parse_text", prompt, true)
	if err != nil {
		return nil, err
	}
	return decodeDevices(text)
}

// Analyze implements Assistant
func (a *GeminiAssistant) Analyze(ctx context.Context, devices []domain.Device) (string, error) {
	payload, err := json.Marshal(devices)
	if err != nil {
		return "", fmt.Errorf("failed to encode devices: %w", err)
	}
	prompt := "Review this network for security and health issues. Answer in under 200 words of plain text.\n" + string(payload)
	return a.generate(ctx, "analyze", prompt, false)
}

// Trace implements Assistant
func (a *GeminiAssistant) Trace(ctx context.Context, target string) ([]domain.Hop, error) {
	prompt := fmt.Sprintf("Simulate a traceroute from a home network to %q. "+
		`Respond with JSON {"hops": [{"hop": 1, "ip": "...", "host": "...", "latency_ms": 1.2}]}.`, target)
	text, err := a.generate(ctx, "trace", prompt, true)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Hops []domain.Hop `json:"hops"`
	}
	if err := json.Unmarshal([]byte(text), &doc.Hops); err == nil {
		return doc.Hops, nil
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &topology.StructuralError{Reason: "unparseable trace response: " + err.Error()}
	}
	return doc.Hops, nil
}

// Optimize implements Assistant
func (a *GeminiAssistant) Optimize(ctx context.Context, devices []domain.Device) (domain.Optimization, error) {
	payload, err := json.Marshal(devices)
	if err != nil {
		return domain.Optimization{}, fmt.Errorf("failed to encode devices: %w", err)
	}
	prompt := "Propose an improved topology for this network, keeping device ids. " +
		`Respond with JSON {"explanation": "...", "topology": [devices]} using the same device fields.` + "\n" + string(payload)
	text, err := a.generate(ctx, "optimize", prompt, true)
	if err != nil {
		return domain.Optimization{}, err
	}

	var opt domain.Optimization
	if err := json.Unmarshal([]byte(text), &opt); err != nil {
		return domain.Optimization{}, &topology.StructuralError{Reason: "unparseable optimization response: " + err.Error()}
	}
	opt.Devices = fillIDs(opt.Devices)
	return opt, nil
}

// generate runs one model call through the retry wrapper
func (a *GeminiAssistant) generate(ctx context.Context, op, prompt string, jsonOut bool) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.4),
	}
	if jsonOut {
		config.ResponseMIMEType = "application/json"
	}

	a.logger.Debug("model call", zap.String("op", op), zap.String("model", a.model))

	text, err := retry.Do(ctx, a.policy, a.logger, func(ctx context.Context) (string, error) {
		resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(prompt), config)
		if err != nil {
			return "", describeAPIError(err)
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	text = stripFence(text)
	if text == "" {
		return "", &topology.StructuralError{Reason: op + ": empty model response"}
	}
	return text, nil
}

// describeAPIError maps a raw GenAI error into the normalized failure shape
func describeAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &retry.Failure{Status: apiErr.Code, Message: strings.TrimSpace(apiErr.Status + " " + apiErr.Message), Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &retry.Failure{Status: apiErrPtr.Code, Message: strings.TrimSpace(apiErrPtr.Status + " " + apiErrPtr.Message), Err: err}
	}
	return err
}

// stripFence removes a markdown code fence around a model answer
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// decodeDevices reads a model device list; unparseable output is structural
func decodeDevices(text string) ([]domain.Device, error) {
	devices, err := codec.NewJSONCodec().Parse(strings.NewReader(text))
	if err != nil {
		return nil, &topology.StructuralError{Reason: "unparseable device list: " + err.Error()}
	}
	return fillIDs(devices), nil
}

// fillIDs gives devices without an id a generated one
func fillIDs(devices []domain.Device) []domain.Device {
	for i := range devices {
		if strings.TrimSpace(devices[i].ID) == "" {
			devices[i].ID = "dev-" + uuid.NewString()
		}
		if devices[i].Vendor == "" {
			devices[i].Vendor = domain.VendorUnknown
		}
		if devices[i].State == "" {
			devices[i].State = domain.StateOnline
		}
		if devices[i].Kind == "" {
			devices[i].Kind = domain.KindPC
		}
	}
	return devices
}

// OfflineAssistant answers without any network access. Only ParseText is
// supported, through the heuristic ARP parser.
type OfflineAssistant struct {
	parser *codec.ARPCodec
}

// NewOfflineAssistant creates the offline assistant
func NewOfflineAssistant() *OfflineAssistant {
	return &OfflineAssistant{parser: codec.NewARPCodec()}
}

// Generate implements Assistant
func (a *OfflineAssistant) Generate(context.Context, string) ([]domain.Device, error) {
	return nil, ErrAssistantOffline
}

// ParseText implements Assistant
func (a *OfflineAssistant) ParseText(_ context.Context, raw string) ([]domain.Device, error) {
	return a.parser.Parse(strings.NewReader(raw))
}

// Analyze implements Assistant
func (a *OfflineAssistant) Analyze(context.Context, []domain.Device) (string, error) {
	return "", ErrAssistantOffline
}

// Trace implements Assistant
func (a *OfflineAssistant) Trace(context.Context, string) ([]domain.Hop, error) {
	return nil, ErrAssistantOffline
}

// Optimize implements Assistant
func (a *OfflineAssistant) Optimize(context.Context, []domain.Device) (domain.Optimization, error) {
	return domain.Optimization{}, ErrAssistantOffline
}
