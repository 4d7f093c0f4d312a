// Package engine talks to the inference worker that runs the ControlNet
// pipelines. No model code runs in this process.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoBackend is returned when no inference worker URL is configured.
var ErrNoBackend = errors.New("no inference backend configured")

// maxErrorBody caps how much of an error response is echoed back.
const maxErrorBody = 4 << 10

// PredictRequest is the JSON body sent to the worker's /predict endpoint.
// Image is PNG data, base64 encoded on the wire.
type PredictRequest struct {
	Demo    string          `json:"demo"`
	Image   []byte          `json:"image,omitempty"`
	Options GenerateOptions `json:"options"`
}

// PredictResponse carries the detected map (first) followed by the samples, PNG encoded.
type PredictResponse struct {
	Images [][]byte `json:"images"`
}

// Engine is an HTTP client for one demo on the inference worker.
type Engine struct {
	baseURL string
	demo    string
	client  *http.Client
}

// New creates an Engine. An empty baseURL yields an Engine whose calls fail
// with ErrNoBackend.
func New(baseURL, demo string, client *http.Client) *Engine {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Engine{
		baseURL: strings.TrimRight(baseURL, "/"),
		demo:    demo,
		client:  client,
	}
}

// Demo returns the demo this engine generates for.
func (e *Engine) Demo() string { return e.demo }

// Configured reports whether a backend URL is set.
func (e *Engine) Configured() bool { return e.baseURL != "" }

// Generate runs one prediction and returns the generated PNG images.
func (e *Engine) Generate(ctx context.Context, image []byte, opts GenerateOptions) ([][]byte, error) {
	if !e.Configured() {
		return nil, ErrNoBackend
	}

	body, err := json.Marshal(PredictRequest{Demo: e.demo, Image: image, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("predict: backend returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	return out.Images, nil
}

// Health checks that the worker is reachable.
func (e *Engine) Health(ctx context.Context) error {
	if !e.Configured() {
		return ErrNoBackend
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health: %s", resp.Status)
	}
	return nil
}
