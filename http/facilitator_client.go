package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/x402go/x402"
)

// ============================================================================
// HTTP Facilitator Client
// ============================================================================

// HTTPFacilitatorClient communicates with remote facilitator services over HTTP
// Implements FacilitatorClient interface (supports both V1 and V2)
type HTTPFacilitatorClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
	identifier   string
}

// AuthProvider generates authentication headers for facilitator requests
type AuthProvider interface {
	// GetAuthHeaders returns authentication headers for each endpoint
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders contains authentication headers for facilitator endpoints
type AuthHeaders struct {
	Verify    map[string]string
	Settle    map[string]string
	Supported map[string]string
}

// FacilitatorConfig configures the HTTP facilitator client
type FacilitatorConfig struct {
	// URL is the base URL of the facilitator service
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional)
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Identifier for this facilitator (optional)
	Identifier string
}

// DefaultFacilitatorURL is the default public facilitator
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// getSupportedRetries is the number of retry attempts for GetSupported on 429 rate limit errors
const getSupportedRetries = 3

// getSupportedRetryBaseDelay is the base delay for exponential backoff on retries
const getSupportedRetryBaseDelay = 1 * time.Second

// NewHTTPFacilitatorClient creates a new HTTP facilitator client
func NewHTTPFacilitatorClient(config *FacilitatorConfig) *HTTPFacilitatorClient {
	if config == nil {
		config = &FacilitatorConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	identifier := config.Identifier
	if identifier == "" {
		identifier = url
	}

	return &HTTPFacilitatorClient{
		url:          url,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
		identifier:   identifier,
	}
}

// ============================================================================
// FacilitatorClient Implementation
// ============================================================================

// Identifier names this facilitator, for resource servers that must report
// which facilitator handled a payment.
func (c *HTTPFacilitatorClient) Identifier() string {
	return c.identifier
}

// Verify checks if a payment is valid (supports both V1 and V2)
func (c *HTTPFacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	version := payload.X402Version
	if version == 0 {
		version = x402.ProtocolVersion
	}

	return c.verifyHTTP(ctx, version, payload, requirements)
}

// Settle executes a payment (supports both V1 and V2)
func (c *HTTPFacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	version := payload.X402Version
	if version == 0 {
		version = x402.ProtocolVersion
	}

	return c.settleHTTP(ctx, version, payload, requirements)
}

// GetSupported gets supported payment kinds (shared by both V1 and V2).
// Retries up to 3 times with exponential backoff on 429 rate limit errors.
func (c *HTTPFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	var lastErr error

	for attempt := range getSupportedRetries {
		// Create request
		req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/supported", nil)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to create supported request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		// Add auth headers if available
		if c.authProvider != nil {
			authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
			if err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to get auth headers: %w", err)
			}
			for k, v := range authHeaders.Supported {
				req.Header.Set(k, v)
			}
		}

		// Make request
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("supported request failed: %w", err)
		}

		// Read response body
		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to read response body: %w", err)
		}

		// Success
		if resp.StatusCode == http.StatusOK {
			var supportedResponse x402.SupportedResponse
			if err := json.Unmarshal(responseBody, &supportedResponse); err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to decode supported response: %w", err)
			}
			return supportedResponse, nil
		}

		lastErr = fmt.Errorf("facilitator supported failed (%d): %s", resp.StatusCode, string(responseBody))

		// Retry on 429 with exponential backoff, except on the last attempt
		if resp.StatusCode == http.StatusTooManyRequests && attempt < getSupportedRetries-1 {
			delay := getSupportedRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return x402.SupportedResponse{}, ctx.Err()
			}
		}

		// Non-429 errors or last attempt: return immediately
		return x402.SupportedResponse{}, lastErr
	}

	return x402.SupportedResponse{}, lastErr
}

// ============================================================================
// Internal HTTP Methods (shared by V1 and V2)
// ============================================================================

// facilitatorCall shares the verify/settle POST mechanics: one JSON body
// of {x402Version, paymentPayload, paymentRequirements}, per-endpoint
// auth headers, and the raw response bytes back for endpoint-specific
// interpretation.
func (c *HTTPFacilitatorClient) facilitatorCall(
	ctx context.Context,
	endpoint string,
	version int,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
	authHeaders map[string]string,
) (statusCode int, responseBody []byte, err error) {
	body, err := json.Marshal(map[string]interface{}{
		"x402Version":         version,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range authHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	responseBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, responseBody, nil
}

// authHeadersFor fetches the per-endpoint auth headers, when a provider
// is configured.
func (c *HTTPFacilitatorClient) authHeadersFor(ctx context.Context, pick func(AuthHeaders) map[string]string) (map[string]string, error) {
	if c.authProvider == nil {
		return nil, nil
	}
	headers, err := c.authProvider.GetAuthHeaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth headers: %w", err)
	}
	return pick(headers), nil
}

func (c *HTTPFacilitatorClient) verifyHTTP(ctx context.Context, version int, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	auth, err := c.authHeadersFor(ctx, func(h AuthHeaders) map[string]string { return h.Verify })
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	statusCode, responseBody, err := c.facilitatorCall(ctx, "verify", version, payload, requirements, auth)
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	var verifyResponse x402.VerifyResponse
	if err := json.Unmarshal(responseBody, &verifyResponse); err != nil {
		return x402.VerifyResponse{}, x402.NewVerifyError(
			x402.ErrInvalidResponse,
			"",
			fmt.Sprintf("failed to unmarshal verify response: %s", err.Error()),
		)
	}

	// Non-200 with a structured reason becomes a typed error; anything
	// else surfaces raw.
	if statusCode != http.StatusOK {
		if verifyResponse.InvalidReason != "" {
			return verifyResponse, x402.NewVerifyError(
				verifyResponse.InvalidReason,
				verifyResponse.Payer,
				verifyResponse.InvalidMessage,
			)
		}
		return x402.VerifyResponse{}, fmt.Errorf("facilitator verify failed (%d): %s", statusCode, string(responseBody))
	}

	return verifyResponse, nil
}

func (c *HTTPFacilitatorClient) settleHTTP(ctx context.Context, version int, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	auth, err := c.authHeadersFor(ctx, func(h AuthHeaders) map[string]string { return h.Settle })
	if err != nil {
		return x402.SettleResponse{}, err
	}

	statusCode, responseBody, err := c.facilitatorCall(ctx, "settle", version, payload, requirements, auth)
	if err != nil {
		return x402.SettleResponse{}, err
	}

	var settleResponse x402.SettleResponse
	if err := json.Unmarshal(responseBody, &settleResponse); err != nil {
		return x402.SettleResponse{}, fmt.Errorf("facilitator settle failed (%d): %s", statusCode, string(responseBody))
	}

	if statusCode != http.StatusOK {
		if settleResponse.ErrorReason != "" {
			return settleResponse, x402.NewSettleError(
				settleResponse.ErrorReason,
				settleResponse.Payer,
				settleResponse.Network,
				settleResponse.Transaction,
				fmt.Sprintf("facilitator returned %d", statusCode),
			)
		}
		return x402.SettleResponse{}, fmt.Errorf("facilitator settle failed (%d): %s", statusCode, string(responseBody))
	}

	return settleResponse, nil
}
