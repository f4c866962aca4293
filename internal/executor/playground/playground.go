// Package playground is the executor backed by the public Rust Playground
// (play.rust-lang.org): POST /execute compiles and runs, POST /meta/gist/
// publishes the source as a gist.
package playground

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/rpg-bot/internal/executor"
)

var _ executor.Executor = (*Client)(nil)

// DefaultURL is the public playground.
const DefaultURL = "https://play.rust-lang.org"

// maxErrorBody caps how much of a non-2xx body ends up in an error.
const maxErrorBody = 512

type executeRequest struct {
	Backtrace bool   `json:"backtrace"`
	Channel   string `json:"channel"`
	Code      string `json:"code"`
	CrateType string `json:"crateType"`
	Edition   string `json:"edition"`
	Mode      string `json:"mode"`
	Tests     bool   `json:"tests"`
}

type executeResponse struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	// Set instead of the fields above when the playground rejects the
	// request itself.
	Error string `json:"error"`
}

type gistRequest struct {
	Code string `json:"code"`
}

type gistResponse struct {
	ID string `json:"id"`
}

// Client talks to one playground instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for baseURL (DefaultURL when empty). timeout bounds
// each request, compile time included.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger.With(slog.String("component", "playground")),
	}
}

// Execute compiles and runs a binary crate.
func (c *Client) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	start := time.Now()

	var resp executeResponse
	err := c.postJSON(ctx, "/execute", executeRequest{
		Channel:   req.Channel,
		Code:      req.Code,
		CrateType: "bin",
		Edition:   req.Edition,
		Mode:      req.Mode,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("playground: execute rejected: %s", resp.Error)
	}

	duration := time.Since(start)
	c.logger.Debug("snippet executed",
		slog.String("channel", req.Channel),
		slog.Bool("success", resp.Success),
		slog.Duration("duration", duration),
	)

	exitCode := 0
	if !resp.Success {
		exitCode = 1
	}
	return &executor.Result{
		Success:  resp.Success,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// Share creates a gist holding code and returns its id.
func (c *Client) Share(ctx context.Context, code string) (string, error) {
	var resp gistResponse
	if err := c.postJSON(ctx, "/meta/gist/", gistRequest{Code: code}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("playground: gist response has no id")
	}
	return resp.ID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("playground: encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("playground: creating %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("playground: calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("playground: %s returned %s: %s", path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("playground: decoding %s response: %w", path, err)
	}
	return nil
}
