// Package http binds the x402 protocol to its HTTP surface: the
// 402/PAYMENT-SIGNATURE/PAYMENT-RESPONSE header conventions (X-PAYMENT
// for the v1 generation), a pay-and-retry client transport, the
// route-gated resource service framework adapters build on, and the
// facilitator HTTP client.
package http

import (
	"context"
	"io"
	"net/http"

	x402 "github.com/x402go/x402"
)

// Short aliases for the package's two main implementation types.
type (
	HTTPClient  = x402HTTPClient
	HTTPService = x402HTTPResourceService
)

// NewClient creates an HTTP-aware x402 client around a core payment
// client (built with x402.Newx402Client and the schemes registered on
// it).
func NewClient(client *x402.X402Client) *x402HTTPClient {
	return Newx402HTTPClient(client)
}

// NewService creates an HTTP resource service over the given routes.
func NewService(routes RoutesConfig, opts ...x402.ResourceServiceOption) *x402HTTPResourceService {
	return Newx402HTTPResourceService(routes, opts...)
}

// Newx402HTTPResourceServer is Newx402HTTPResourceService under the
// server-flavored name used when the service fronts protected routes.
func Newx402HTTPResourceServer(routes RoutesConfig, opts ...x402.ResourceServiceOption) *x402HTTPResourceService {
	return Newx402HTTPResourceService(routes, opts...)
}

// NewFacilitatorClient creates an HTTP facilitator client.
func NewFacilitatorClient(config *FacilitatorConfig) *HTTPFacilitatorClient {
	return NewHTTPFacilitatorClient(config)
}

// WrapClient installs transparent payment handling on an HTTP client.
func WrapClient(client *http.Client, x402Client *x402HTTPClient) *http.Client {
	return WrapHTTPClientWithPayment(client, x402Client)
}

// Get performs a GET with transparent payment handling.
func Get(ctx context.Context, url string, x402Client *x402HTTPClient) (*http.Response, error) {
	return x402Client.GetWithPayment(ctx, url)
}

// Post performs a POST with transparent payment handling.
func Post(ctx context.Context, url string, body io.Reader, x402Client *x402HTTPClient) (*http.Response, error) {
	return x402Client.PostWithPayment(ctx, url, body)
}

// Do performs a request with transparent payment handling.
func Do(ctx context.Context, req *http.Request, x402Client *x402HTTPClient) (*http.Response, error) {
	return x402Client.DoWithPayment(ctx, req)
}
