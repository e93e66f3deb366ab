package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"image-tagger/internal/logging"
	"image-tagger/internal/metrics"
)

const (
	// DefaultServer is the local Ollama endpoint.
	DefaultServer = "http://127.0.0.1:11434"
	// DefaultModel is the vision model used when none is configured.
	DefaultModel = "llama3.2-vision"
	// DefaultTimeout bounds one describe request.
	DefaultTimeout = 300 * time.Second
	// DefaultPrompt asks for a single descriptive paragraph.
	DefaultPrompt = "Describe this image in a single paragraph with specific details. " +
		"Mention what is shown, the setting, and any notable features."
	// DefaultTemperature keeps descriptions stable across runs.
	DefaultTemperature = 0.1

	healthCheckTimeout = 5 * time.Second
	maxErrorBody       = 512
)

// Config configures a Client.
type Config struct {
	Prompt      string
	Temperature float64
	// HealthCheck probes /api/tags before every describe request.
	HealthCheck bool
	// Restarter is invoked after errors that suggest the backend is wedged.
	Restarter *Restarter
	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

// DefaultConfig returns the defaults for a local Ollama.
func DefaultConfig() Config {
	return Config{
		Prompt:      DefaultPrompt,
		Temperature: DefaultTemperature,
	}
}

// Client calls the Ollama HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Client. Request timeouts are per call.
func NewClient(config Config) *Client {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Transport: &loggingTransport{next: transport}},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Images  []string        `json:"images"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Describe asks model on server to describe image (JPEG bytes).
func (c *Client) Describe(ctx context.Context, image []byte, model, server string, timeout time.Duration) (string, error) {
	if model == "" {
		model = DefaultModel
	}
	if server == "" {
		server = DefaultServer
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if c.config.HealthCheck {
		if err := c.Ping(ctx, server); err != nil {
			return "", c.fail(ctx, err)
		}
	}

	start := time.Now()
	desc, err := c.generate(ctx, image, model, server, timeout)
	metrics.VisionRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", c.fail(ctx, err)
	}

	metrics.VisionRequestsTotal.WithLabelValues("success").Inc()
	return desc, nil
}

func (c *Client) generate(ctx context.Context, image []byte, model, server string, timeout time.Duration) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  c.config.Prompt,
		Stream:  false,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
		Options: generateOptions{Temperature: c.config.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint(server, "/api/generate"), bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindServerError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ctx, reqCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Err: errors.New(truncate(string(data)))}
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &Error{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != "" {
		return "", &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Err: errors.New(out.Error)}
	}

	desc := strings.TrimSpace(out.Response)
	if desc == "" {
		return "", &Error{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: errors.New("empty description")}
	}
	return desc, nil
}

// Ping checks that server answers /api/tags.
func (c *Client) Ping(ctx context.Context, server string) error {
	if server == "" {
		server = DefaultServer
	}
	reqCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint(server, "/api/tags"), nil)
	if err != nil {
		return &Error{Kind: KindServerError, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.VisionHealthChecksTotal.WithLabelValues("unhealthy").Inc()
		return transportError(ctx, reqCtx, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		metrics.VisionHealthChecksTotal.WithLabelValues("unhealthy").Inc()
		return &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Err: errors.New("health check failed")}
	}
	metrics.VisionHealthChecksTotal.WithLabelValues("healthy").Inc()
	return nil
}

// fail records the failure and pokes the restarter when the error looks
// like a wedged backend.
func (c *Client) fail(ctx context.Context, err error) error {
	var verr *Error
	if !errors.As(err, &verr) {
		return err
	}
	metrics.VisionRequestsTotal.WithLabelValues(verr.Kind.String()).Inc()

	if c.config.Restarter != nil && needsRestart(verr) {
		c.config.Restarter.Restart(ctx, verr.Error())
	}
	return err
}

func needsRestart(err *Error) bool {
	if err.StatusCode == http.StatusInternalServerError || err.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	return err.Kind == KindServerError && strings.Contains(strings.ToLower(err.Error()), "out of memory")
}

// transportError maps a failed round trip. Cancellation of the caller's
// context is returned unwrapped so callers can tell shutdown from failure.
func transportError(parent, reqCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindServerError, Err: err}
}

func endpoint(server, path string) string {
	server = strings.TrimRight(server, "/")
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return server + path
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// loggingTransport logs each backend call at debug level.
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		logging.Debug("Vision %s %s failed after %v: %v", req.Method, req.URL.Path, time.Since(start), err)
		return nil, err
	}
	logging.Debug("Vision %s %s -> %d in %v", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}
