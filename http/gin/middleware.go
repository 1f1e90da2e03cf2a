// Package gin binds the x402 HTTP payment flow to the gin framework: a
// middleware that 402s unpaid requests, verifies payments before the
// handler runs, and settles after it succeeds.
package gin

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	x402 "github.com/x402go/x402"
	x402http "github.com/x402go/x402/http"
	"github.com/gin-gonic/gin"
)

// ============================================================================
// HTTPAdapter binding
// ============================================================================

// GinAdapter exposes a gin request through the framework-neutral
// HTTPAdapter the payment pipeline consumes.
type GinAdapter struct {
	ctx *gin.Context
}

// NewGinAdapter wraps a gin context.
func NewGinAdapter(ctx *gin.Context) *GinAdapter {
	return &GinAdapter{ctx: ctx}
}

func (a *GinAdapter) GetHeader(name string) string {
	return a.ctx.GetHeader(name)
}

func (a *GinAdapter) GetMethod() string {
	return a.ctx.Request.Method
}

func (a *GinAdapter) GetPath() string {
	return a.ctx.Request.URL.Path
}

// GetURL reconstructs the absolute request URL; the scheme comes from
// whether TLS terminated here.
func (a *GinAdapter) GetURL() string {
	scheme := "http"
	if a.ctx.Request.TLS != nil {
		scheme = "https"
	}
	host := a.ctx.Request.Host
	if host == "" {
		host = a.ctx.GetHeader("Host")
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, a.ctx.Request.URL.Path)
}

func (a *GinAdapter) GetAcceptHeader() string {
	return a.ctx.GetHeader("Accept")
}

func (a *GinAdapter) GetUserAgent() string {
	return a.ctx.GetHeader("User-Agent")
}

// ============================================================================
// Configuration
// ============================================================================

// MiddlewareConfig collects everything PaymentMiddleware needs: routes,
// facilitators, scheme services, and the optional handlers.
type MiddlewareConfig struct {
	Routes             x402http.RoutesConfig
	FacilitatorClients []x402.FacilitatorClient
	Schemes            []SchemeRegistration
	PaywallConfig      *x402http.PaywallConfig

	// InitializeOnStart fetches facilitator capabilities when the
	// middleware is built rather than lazily.
	InitializeOnStart bool

	// ErrorHandler, when set, owns settlement-failure responses.
	ErrorHandler func(*gin.Context, error)

	// SettlementHandler, when set, observes every successful settlement.
	SettlementHandler func(*gin.Context, x402.SettleResponse)

	// Timeout bounds each request's payment operations.
	Timeout time.Duration
}

// SchemeRegistration pairs a network with its server-side mechanism.
type SchemeRegistration struct {
	Network x402.Network
	Service x402.SchemeNetworkService
}

// MiddlewareOption configures PaymentMiddleware.
type MiddlewareOption func(*MiddlewareConfig)

// WithFacilitatorClient adds a facilitator client.
func WithFacilitatorClient(client x402.FacilitatorClient) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.FacilitatorClients = append(c.FacilitatorClients, client)
	}
}

// WithScheme registers a scheme service for a network.
func WithScheme(network x402.Network, service x402.SchemeNetworkService) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.Schemes = append(c.Schemes, SchemeRegistration{Network: network, Service: service})
	}
}

// WithPaywallConfig sets the browser paywall configuration.
func WithPaywallConfig(config *x402http.PaywallConfig) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.PaywallConfig = config
	}
}

// WithInitializeOnStart controls eager facilitator initialization.
func WithInitializeOnStart(initialize bool) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.InitializeOnStart = initialize
	}
}

// WithErrorHandler sets the settlement-failure handler.
func WithErrorHandler(handler func(*gin.Context, error)) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.ErrorHandler = handler
	}
}

// WithSettlementHandler sets the settlement observer.
func WithSettlementHandler(handler func(*gin.Context, x402.SettleResponse)) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.SettlementHandler = handler
	}
}

// WithTimeout bounds per-request payment operations.
func WithTimeout(timeout time.Duration) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.Timeout = timeout
	}
}

// ============================================================================
// Middleware
// ============================================================================

// PaymentMiddleware builds the gin payment gate for the given routes.
// Unprotected routes pass straight through; protected ones 402 until a
// payment verifies, then the handler runs with its response captured so
// settlement only happens for successful responses.
func PaymentMiddleware(routes x402http.RoutesConfig, opts ...MiddlewareOption) gin.HandlerFunc {
	config := &MiddlewareConfig{
		Routes:            routes,
		InitializeOnStart: true,
		Timeout:           30 * time.Second,
	}
	for _, opt := range opts {
		opt(config)
	}

	serviceOpts := make([]x402.ResourceServiceOption, 0, len(config.FacilitatorClients))
	for _, client := range config.FacilitatorClients {
		serviceOpts = append(serviceOpts, x402.WithFacilitatorClient(client))
	}

	service := x402http.Newx402HTTPResourceService(config.Routes, serviceOpts...)
	for _, scheme := range config.Schemes {
		service.RegisterScheme(scheme.Network, scheme.Service)
	}

	if config.InitializeOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		defer cancel()

		// A facilitator that isn't up yet is not fatal; capabilities load
		// on the next Initialize.
		if err := service.Initialize(ctx); err != nil {
			fmt.Printf("Warning: failed to initialize x402 service: %v\n", err)
		}
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()

		result := service.ProcessHTTPRequest(ctx, x402http.HTTPRequestContext{
			Adapter: NewGinAdapter(c),
			Path:    c.Request.URL.Path,
			Method:  c.Request.Method,
		}, config.PaywallConfig)

		switch result.Type {
		case x402http.ResultNoPaymentRequired:
			c.Next()
		case x402http.ResultPaymentError:
			writePaymentError(c, result.Response)
		case x402http.ResultPaymentVerified:
			runHandlerAndSettle(c, ctx, service, result, config)
		}
	}
}

// writePaymentError sends a 402 (or build-failure 500) and stops the
// chain.
func writePaymentError(c *gin.Context, response *x402http.HTTPResponseInstructions) {
	for key, value := range response.Headers {
		c.Header(key, value)
	}

	if response.IsHTML {
		c.Data(response.Status, "text/html; charset=utf-8", []byte(response.Body.(string)))
	} else {
		c.JSON(response.Status, response.Body)
	}

	c.Abort()
}

// runHandlerAndSettle executes the protected handler with its response
// buffered, settles when it succeeded, and only then releases the
// response — settlement headers have to precede the body on the wire.
func runHandlerAndSettle(c *gin.Context, ctx context.Context, service *x402http.HTTPService, result x402http.HTTPProcessResult, config *MiddlewareConfig) {
	capture := newResponseCapture(c.Writer)
	c.Writer = capture

	c.Next()

	if c.IsAborted() {
		return
	}
	c.Writer = capture.ResponseWriter

	// Failed handler responses aren't billed; flush as-is.
	if capture.statusCode >= 400 {
		capture.flushTo(c.Writer)
		return
	}

	settlementHeaders, err := service.ProcessSettlement(ctx, *result.PaymentPayload, *result.PaymentRequirements, capture.statusCode)
	if err != nil {
		if config.ErrorHandler != nil {
			config.ErrorHandler(c, fmt.Errorf("settlement failed: %w", err))
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Settlement failed",
				"details": err.Error(),
			})
		}
		return
	}

	for key, value := range settlementHeaders {
		c.Header(key, value)
	}

	if config.SettlementHandler != nil {
		if header := settlementHeaders["PAYMENT-RESPONSE"]; header != "" {
			if settleResponse, err := x402http.DecodePaymentResponseHeader(header); err == nil {
				config.SettlementHandler(c, settleResponse)
			}
		}
	}

	capture.flushTo(c.Writer)
}

// ============================================================================
// Response capture
// ============================================================================

// responseCapture buffers the handler's response so settlement can run
// (and its headers be attached) before anything reaches the client.
type responseCapture struct {
	gin.ResponseWriter
	mu         sync.Mutex
	body       *bytes.Buffer
	statusCode int
	written    bool
}

func newResponseCapture(inner gin.ResponseWriter) *responseCapture {
	return &responseCapture{
		ResponseWriter: inner,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
	}
}

// WriteHeader records the first status code; later calls are ignored,
// matching net/http semantics.
func (w *responseCapture) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recordStatusLocked(code)
}

func (w *responseCapture) recordStatusLocked(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

// Write buffers body bytes, defaulting the status to 200 on first write.
func (w *responseCapture) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recordStatusLocked(http.StatusOK)
	return w.body.Write(data)
}

func (w *responseCapture) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// flushTo releases the buffered response to the real writer.
func (w *responseCapture) flushTo(writer gin.ResponseWriter) {
	writer.WriteHeader(w.statusCode)
	writer.Write(w.body.Bytes())
}

// ============================================================================
// Convenience constructors
// ============================================================================

// SimplePaymentMiddleware protects every route with one price: the
// one-liner for services with a single paid surface.
func SimplePaymentMiddleware(payTo string, price string, network x402.Network, facilitatorURL string) gin.HandlerFunc {
	facilitator := x402http.NewHTTPFacilitatorClient(&x402http.FacilitatorConfig{
		URL: facilitatorURL,
	})

	routes := x402http.RoutesConfig{
		"*": x402http.RouteConfig{
			Scheme:  "exact",
			PayTo:   payTo,
			Price:   price,
			Network: network,
		},
	}

	return PaymentMiddleware(routes,
		WithFacilitatorClient(facilitator),
		WithInitializeOnStart(true),
	)
}
