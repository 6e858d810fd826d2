package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RishiKendai/overlap/internal/models"
	"github.com/rs/zerolog/log"
)

// FingerprinterClient handles communication with the fingerprinting service
type FingerprinterClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFingerprinterClient creates a new fingerprinting service client
func NewFingerprinterClient(baseURL, apiKey string, timeout time.Duration) *FingerprinterClient {
	return &FingerprinterClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *FingerprinterClient) Fingerprint(ctx context.Context, req *models.FingerprintRequest) (*models.FingerprintResponse, error) {
	url := fmt.Sprintf("%s/api/v1/fingerprint", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	log.Trace().
		Str("repository", req.Repository).
		Str("file", req.File).
		Int("bytes", len(reqBody)).
		Msg("Requesting fingerprints")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnsupportedMediaType ||
		resp.StatusCode == http.StatusUnprocessableEntity {
		// the service rejected the input itself, resending it cannot help
		var errResp models.FingerprintError
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, &PermanentError{Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}
		}
		return nil, &PermanentError{Err: fmt.Errorf("API error: %s - %s", errResp.Error, errResp.Message)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var fingerprintResp models.FingerprintResponse
	if err := json.Unmarshal(body, &fingerprintResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &fingerprintResp, nil
}
