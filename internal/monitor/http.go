package monitor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const processesPath = "/ControllableProcesses"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL   string        // e.g. http://localhost:60404
	Timeout   time.Duration // per request
	UserAgent string

	// H2C speaks HTTP/2 without TLS to the monitor.
	H2C bool

	// LaunchCommand, if set, is started when the monitor is unreachable.
	LaunchCommand string
	LaunchTimeout time.Duration
	Backoff       BackoffConfig
	BackoffSeed   int64
}

// HTTPClient implements Client against the monitor's REST API.
type HTTPClient struct {
	baseURL *url.URL
	config  HTTPConfig
	http    *http.Client
	logger  *slog.Logger

	// startCommand launches the monitor; replaced in tests.
	startCommand func(command string) error
}

// NewHTTPClient creates a client for the monitor at cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid monitor URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid monitor URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 30 * time.Second
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.H2C {
		transport = newH2CTransport()
	}

	return &HTTPClient{
		baseURL: u,
		config:  cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger:       logger,
		startCommand: startDetached,
	}, nil
}

// newH2CTransport returns an HTTP/2 transport over cleartext TCP.
func newH2CTransport() *http2.Transport {
	return &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
}

// EnsureRunning probes the monitor and, if a launch command is configured,
// starts it and polls with backoff until it answers or LaunchTimeout passes.
func (c *HTTPClient) EnsureRunning(ctx context.Context) error {
	probeErr := c.probe(ctx)
	if probeErr == nil {
		return nil
	}

	if c.config.LaunchCommand == "" {
		return errors.Join(
			fmt.Errorf("monitor at %s is not reachable", c.baseURL),
			probeErr,
		)
	}

	c.logger.Info("monitor_launching",
		"url", c.baseURL.String(),
		"command", c.config.LaunchCommand,
		"probe_error", probeErr,
	)
	if err := c.startCommand(c.config.LaunchCommand); err != nil {
		return errors.Join(
			fmt.Errorf("monitor at %s is not reachable", c.baseURL),
			fmt.Errorf("could not launch monitor: %w", err),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.LaunchTimeout)
	defer cancel()

	backoff := NewBackoff(c.config.BackoffSeed, c.config.Backoff)
	for {
		delay := backoff.Next()
		select {
		case <-ctx.Done():
			return errors.Join(
				fmt.Errorf("monitor at %s did not come up within %s", c.baseURL, c.config.LaunchTimeout),
				probeErr,
			)
		case <-time.After(delay):
		}

		if probeErr = c.probe(ctx); probeErr == nil {
			c.logger.Info("monitor_launched",
				"url", c.baseURL.String(),
				"attempts", backoff.Attempts(),
			)
			return nil
		}
		c.logger.Debug("monitor_probe_failed",
			"attempt", backoff.Attempts(),
			"error", probeErr,
		)
	}
}

// probe issues a roster read and expects 200.
func (c *HTTPClient) probe(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, processesPath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("monitor probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Register implements Client.
func (c *HTTPClient) Register(ctx context.Context, reg Registration) (int, error) {
	body := ControllableProcess{
		ProcessID:     reg.ProcessID,
		Title:         reg.Title,
		Status:        StatusIdle,
		ConfirmedAt:   time.Now().UTC(),
		LaunchCommand: reg.LaunchCommand,
		InstanceID:    reg.InstanceID.String(),
	}
	return c.statusOf(ctx, http.MethodPut, processPath(reg.ProcessID), body)
}

// ConfirmAlive implements Client.
func (c *HTTPClient) ConfirmAlive(ctx context.Context, id ProcessIdentity, at time.Time, status ProcessStatus) (int, error) {
	body := ControllableProcess{
		ProcessID:   id,
		Status:      status,
		ConfirmedAt: at.UTC(),
	}
	return c.statusOf(ctx, http.MethodPatch, processPath(id), body)
}

// ListRegistered implements Client.
func (c *HTTPClient) ListRegistered(ctx context.Context) ([]ControllableProcess, error) {
	resp, err := c.do(ctx, http.MethodGet, processesPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("list processes: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Value []ControllableProcess `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode process list: %w", err)
	}
	return envelope.Value, nil
}

// ConfirmDead implements Client.
func (c *HTTPClient) ConfirmDead(ctx context.Context, id ProcessIdentity) error {
	body := ControllableProcess{
		ProcessID:   id,
		Status:      StatusDead,
		ConfirmedAt: time.Now().UTC(),
	}
	code, err := c.statusOf(ctx, http.MethodPatch, processPath(id), body)
	if err != nil {
		return err
	}
	if code != http.StatusNoContent {
		return fmt.Errorf("confirm dead: HTTP %d", code)
	}
	return nil
}

// statusOf sends a JSON body and returns only the status code.
func (c *HTTPClient) statusOf(ctx context.Context, method, path string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal %s %s: %w", method, path, err)
	}

	start := time.Now()
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	c.logger.Debug("monitor_request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func processPath(id ProcessIdentity) string {
	return processesPath + "(" + id.String() + ")"
}

// startDetached starts command and does not wait for it.
func startDetached(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return errors.New("empty launch command")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
