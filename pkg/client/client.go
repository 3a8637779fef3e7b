package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/workflowd/pkg/api"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/types"
	"github.com/rs/zerolog"
)

// Client talks to a workflowd server over HTTP
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/v1",
		Timeout: 30 * time.Second,
	}
}

// New creates a client. A bare host:port is taken as http://host:port/v1.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	base := cfg.BaseURL
	if !strings.Contains(base, "://") {
		base = "http://" + base + "/v1"
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log.WithComponent("client"),
	}
}

// body is the union of a manager reply and an error response
type body struct {
	api.ReplyResponse
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("Sending request")
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach workflowd: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
		}
	}
	return resp.StatusCode, nil
}

// command sends a manager command. Manager replies are returned as they are,
// whatever their status; transport failures are errors.
func (c *Client) command(ctx context.Context, method, path string) (api.ReplyResponse, error) {
	var b body
	code, err := c.do(ctx, method, path, nil, &b)
	if err != nil {
		return api.ReplyResponse{}, err
	}
	if b.Error != "" {
		return api.ReplyResponse{}, fmt.Errorf("HTTP %d: %s", code, b.Error)
	}
	return b.ReplyResponse, nil
}

func (c *Client) create(ctx context.Context, method, path string, in any) (int64, error) {
	var out struct {
		api.CreatedResponse
		Error string `json:"error"`
	}
	code, err := c.do(ctx, method, path, in, &out)
	if err != nil {
		return 0, err
	}
	if code != http.StatusCreated {
		return 0, fmt.Errorf("HTTP %d: %s", code, out.Error)
	}
	return out.ID, nil
}

func processPath(pid int64, suffix string) string {
	return "/processes/" + strconv.FormatInt(pid, 10) + suffix
}

// Queue asks the manager to queue a process
func (c *Client) Queue(ctx context.Context, pid int64) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, processPath(pid, "/queue"))
}

// ReportRunning answers a liveness query for a process
func (c *Client) ReportRunning(ctx context.Context, pid int64, running bool) (api.ReplyResponse, error) {
	answer := "NO"
	if running {
		answer = "YES"
	}
	return c.command(ctx, http.MethodPost, processPath(pid, "/running?answer="+answer))
}

// ReportCompleted reports a process as completed
func (c *Client) ReportCompleted(ctx context.Context, pid int64) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, processPath(pid, "/completed"))
}

// ReportFailed reports a process as failed
func (c *Client) ReportFailed(ctx context.Context, pid int64) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, processPath(pid, "/failed"))
}

// ReportParked reports a process as parked
func (c *Client) ReportParked(ctx context.Context, pid int64) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, processPath(pid, "/parked"))
}

// ProcessList returns the manager's process table
func (c *Client) ProcessList(ctx context.Context) ([]types.ProcessRecord, error) {
	reply, err := c.command(ctx, http.MethodGet, "/processes")
	if err != nil {
		return nil, err
	}
	return reply.ProcessList, nil
}

// CheckQueue runs a start cycle
func (c *Client) CheckQueue(ctx context.Context) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, "/queue/check")
}

// Disable puts the engine into maintenance mode
func (c *Client) Disable(ctx context.Context) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, "/engine/disable")
}

// Enable takes the engine out of maintenance mode
func (c *Client) Enable(ctx context.Context) (api.ReplyResponse, error) {
	return c.command(ctx, http.MethodPost, "/engine/enable")
}

// EngineStatus returns the last published engine status
func (c *Client) EngineStatus(ctx context.Context) (types.EngineStatus, error) {
	var out struct {
		types.EngineStatus
		Error string `json:"error"`
	}
	code, err := c.do(ctx, http.MethodGet, "/engine/status", nil, &out)
	if err != nil {
		return types.EngineStatus{}, err
	}
	if code != http.StatusOK {
		return types.EngineStatus{}, fmt.Errorf("HTTP %d: %s", code, out.Error)
	}
	return out.EngineStatus, nil
}

// CreateRoute creates a route and returns its id
func (c *Client) CreateRoute(ctx context.Context, req api.RouteRequest) (int64, error) {
	return c.create(ctx, http.MethodPost, "/routes", req)
}

// CreateContact creates a contact
func (c *Client) CreateContact(ctx context.Context, req api.ContactRequest) (int64, error) {
	return c.create(ctx, http.MethodPost, "/contacts", req)
}

// CreateProcess creates a process and returns its id
func (c *Client) CreateProcess(ctx context.Context, req api.ProcessRequest) (int64, error) {
	return c.create(ctx, http.MethodPost, "/processes", req)
}

// CreateMessage attaches a message to a process
func (c *Client) CreateMessage(ctx context.Context, pid int64, req api.MessageRequest) error {
	_, err := c.create(ctx, http.MethodPost, processPath(pid, "/messages"), req)
	return err
}

// SetProperty sets a workflow property on a process. An empty value deletes it.
func (c *Client) SetProperty(ctx context.Context, pid int64, name, value string) error {
	_, err := c.create(ctx, http.MethodPut, processPath(pid, "/properties/"+url.PathEscape(name)), api.PropertyRequest{Value: value})
	return err
}
