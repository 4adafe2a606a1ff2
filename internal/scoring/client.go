// Package scoring talks to the external model-serving service over HTTP.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"match-engine-go/internal/config"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/types"
)

const (
	predictPath = "/predict"
	healthPath  = "/health"

	// Bound on error-body reads so a misbehaving backend cannot make us
	// buffer an unbounded payload into an error message.
	maxErrorBodyBytes = 4 << 10
)

// Client is a thin HTTP client for the scoring service. Connect and read
// timeouts are configured independently: a dead host should fail fast while a
// slow model inference is still given room to finish.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Client from configuration.
func NewClient(cfg *config.ScoringConfig, opts ...Option) *Client {
	connectTimeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	readTimeout := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: connectTimeout + readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: readTimeout,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict submits one or more feature vectors and returns the service's
// predictions. All failures come back as *Error with a classified kind.
func (c *Client) Predict(ctx context.Context, features []types.FeatureVector) (*types.PredictionResponse, error) {
	reqBody := types.PredictionRequest{Features: features}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, newClientError(0, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(payload))
	if err != nil {
		return nil, newClientError(0, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newUnavailableError("predict request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorBody(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, newServerError(resp.StatusCode, msg)
		}
		return nil, newClientError(resp.StatusCode, msg)
	}

	var predResp types.PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return nil, newUnavailableError("decode predict response", err)
	}
	if len(predResp.Predictions) == 0 {
		return nil, newServerError(resp.StatusCode, "response contained no predictions")
	}

	logger.Debug().
		Int("feature_count", len(features)).
		Int("prediction_count", len(predResp.Predictions)).
		Str("model_version", predResp.ModelVersion).
		Msg("Scoring service returned predictions")
	return &predResp, nil
}

// healthResponse mirrors the scoring service's health payload.
type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// HealthCheck reports whether the scoring service is up with a loaded model.
// Transport and decode failures read as unhealthy rather than errors; the
// cause is logged here so callers only deal with a boolean.
func (c *Client) HealthCheck(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Scoring health check: build request failed")
		return false
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn().Err(err).Msg("Scoring health check: request failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		logger.Warn().Err(err).Msg("Scoring health check: decode response failed")
		return false
	}
	return strings.EqualFold(health.Status, "healthy") && health.ModelLoaded
}

func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil || len(body) == 0 {
		return "no response body"
	}
	return string(bytes.TrimSpace(body))
}
