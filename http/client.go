package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/types"
)

// x402HTTPClient wraps a core payment client with the HTTP wire
// conventions: header encode/decode and a transparent pay-and-retry
// RoundTripper.
type x402HTTPClient struct {
	client *x402.X402Client
}

// Newx402HTTPClient creates an HTTP-aware wrapper around a configured
// payment client.
func Newx402HTTPClient(client *x402.X402Client) *x402HTTPClient {
	return &x402HTTPClient{client: client}
}

// ============================================================================
// Base64+JSON header codec
// ============================================================================

// encodeBase64JSON renders a wire value as its base64 header form. The
// protocol types always marshal; a failure here is a programming error.
func encodeBase64JSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal %T: %v", v, err))
	}
	return base64.StdEncoding.EncodeToString(data)
}

// decodeBase64JSON decodes a base64 header value into dst.
func decodeBase64JSON(header string, dst interface{}) error {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid %T JSON: %w", dst, err)
	}
	return nil
}

func encodePaymentSignatureHeader(payload x402.PaymentPayload) string {
	return encodeBase64JSON(payload)
}

func decodePaymentSignatureHeader(header string) (x402.PaymentPayload, error) {
	var payload x402.PaymentPayload
	err := decodeBase64JSON(header, &payload)
	return payload, err
}

func encodePaymentRequiredHeader(required x402.PaymentRequired) string {
	return encodeBase64JSON(required)
}

func decodePaymentRequiredHeader(header string) (x402.PaymentRequired, error) {
	var required x402.PaymentRequired
	err := decodeBase64JSON(header, &required)
	return required, err
}

func encodePaymentResponseHeader(response x402.SettleResponse) string {
	return encodeBase64JSON(response)
}

// DecodePaymentResponseHeader decodes a settlement response from its
// base64 header value (PAYMENT-RESPONSE or X-PAYMENT-RESPONSE), for
// framework bindings that hold the raw header.
func DecodePaymentResponseHeader(header string) (x402.SettleResponse, error) {
	var response x402.SettleResponse
	err := decodeBase64JSON(header, &response)
	return response, err
}

func decodePaymentResponseHeader(header string) (x402.SettleResponse, error) {
	return DecodePaymentResponseHeader(header)
}

// ============================================================================
// Wire conventions
// ============================================================================

// EncodePaymentSignatureHeader renders raw payload bytes as the request
// header for their wire version: PAYMENT-SIGNATURE for v2, X-PAYMENT for
// v1. Unversioned bytes are a caller bug and panic.
func (c *x402HTTPClient) EncodePaymentSignatureHeader(payloadBytes []byte) map[string]string {
	version, err := types.DetectVersion(payloadBytes)
	if err != nil {
		panic(fmt.Sprintf("failed to detect version: %v", err))
	}

	encoded := base64.StdEncoding.EncodeToString(payloadBytes)
	switch version {
	case 2:
		return map[string]string{"PAYMENT-SIGNATURE": encoded}
	case 1:
		return map[string]string{"X-PAYMENT": encoded}
	default:
		panic(fmt.Sprintf("unsupported x402 version: %d", version))
	}
}

// upperKeys normalizes a header map for case-insensitive lookup.
func upperKeys(headers map[string]string) map[string]string {
	normalized := make(map[string]string, len(headers))
	for k, v := range headers {
		normalized[strings.ToUpper(k)] = v
	}
	return normalized
}

// GetPaymentRequiredResponse recovers the PaymentRequired from a 402: the
// v2 PAYMENT-REQUIRED header when present, else a v1 JSON body.
func (c *x402HTTPClient) GetPaymentRequiredResponse(headers map[string]string, body []byte) (x402.PaymentRequired, error) {
	normalized := upperKeys(headers)

	if header, exists := normalized["PAYMENT-REQUIRED"]; exists {
		return decodePaymentRequiredHeader(header)
	}

	if len(body) > 0 {
		var required x402.PaymentRequired
		if err := json.Unmarshal(body, &required); err == nil && required.X402Version == 1 {
			return required, nil
		}
	}

	return x402.PaymentRequired{}, fmt.Errorf("no payment required information found in response")
}

// GetPaymentSettleResponse recovers the settlement response from either
// generation's response header.
func (c *x402HTTPClient) GetPaymentSettleResponse(headers map[string]string) (x402.SettleResponse, error) {
	normalized := upperKeys(headers)

	for _, name := range []string{"PAYMENT-RESPONSE", "X-PAYMENT-RESPONSE"} {
		if header, exists := normalized[name]; exists {
			return decodePaymentResponseHeader(header)
		}
	}

	return x402.SettleResponse{}, fmt.Errorf("payment response header not found")
}

// ============================================================================
// Pay-and-retry transport
// ============================================================================

// WrapHTTPClientWithPayment installs the payment RoundTripper on an HTTP
// client, so every 402 is paid and retried transparently.
func WrapHTTPClientWithPayment(client *http.Client, x402Client *x402HTTPClient) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client.Transport = &PaymentRoundTripper{
		Transport:  transport,
		x402Client: x402Client,
		retryCount: &sync.Map{},
	}
	return client
}

// PaymentRoundTripper is the http.RoundTripper behind the transparent
// flow: request, 402, create payment, retry with the payment header.
type PaymentRoundTripper struct {
	Transport  http.RoundTripper
	x402Client *x402HTTPClient

	// retryCount guards against a server that 402s the paid retry too.
	retryCount *sync.Map
}

// RoundTrip performs the request, paying exactly once on a 402.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := fmt.Sprintf("%p", req)
	count, _ := t.retryCount.LoadOrStore(requestID, 0)
	defer t.retryCount.Delete(requestID)

	if count.(int) > 1 {
		return nil, fmt.Errorf("payment retry limit exceeded")
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	t.retryCount.Store(requestID, count.(int)+1)

	paymentReq, err := t.buildPaidRetry(req, resp)
	if err != nil {
		return nil, err
	}

	return t.Transport.RoundTrip(paymentReq)
}

// buildPaidRetry consumes the 402 response, creates the payment through
// the core client's selection pipeline, and clones the request with the
// payment header attached.
func (t *PaymentRoundTripper) buildPaidRetry(req *http.Request, resp *http.Response) (*http.Request, error) {
	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read 402 response body: %w", err)
		}
	}

	paymentRequired, err := t.x402Client.GetPaymentRequiredResponse(headers, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}

	selected, err := t.x402Client.client.SelectPaymentRequirements(paymentRequired.X402Version, paymentRequired.Accepts)
	if err != nil {
		return nil, fmt.Errorf("cannot fulfill payment requirements: %w", err)
	}

	ctx := req.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := t.x402Client.client.CreatePaymentPayload(ctx, paymentRequired.X402Version, selected, paymentRequired.Resource, paymentRequired.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment payload: %w", err)
	}

	paymentReq := req.Clone(ctx)
	for k, v := range t.x402Client.EncodePaymentSignatureHeader(payloadBytes) {
		paymentReq.Header.Set(k, v)
	}
	return paymentReq, nil
}

// ============================================================================
// Convenience methods
// ============================================================================

// DoWithPayment performs req with transparent payment handling.
func (c *x402HTTPClient) DoWithPayment(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := &http.Client{
		Transport: &PaymentRoundTripper{
			Transport:  http.DefaultTransport,
			x402Client: c,
			retryCount: &sync.Map{},
		},
	}
	return client.Do(req.WithContext(ctx))
}

// GetWithPayment GETs url with transparent payment handling.
func (c *x402HTTPClient) GetWithPayment(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}

// PostWithPayment POSTs body to url with transparent payment handling.
func (c *x402HTTPClient) PostWithPayment(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}
