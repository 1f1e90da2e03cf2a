package http

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	x402 "github.com/x402go/x402"
)

// HTTPAdapter is the framework-neutral view of an incoming request. Each
// web framework binding (gin here; net/http, echo, chi elsewhere)
// implements it once and the whole payment flow works unchanged.
type HTTPAdapter interface {
	GetHeader(name string) string
	GetMethod() string
	GetPath() string
	GetURL() string
	GetAcceptHeader() string
	GetUserAgent() string
}

// ============================================================================
// Route and paywall configuration
// ============================================================================

// PaywallConfig configures the HTML paywall served to browsers.
type PaywallConfig struct {
	CDPClientKey         string `json:"cdpClientKey,omitempty"`
	AppName              string `json:"appName,omitempty"`
	AppLogo              string `json:"appLogo,omitempty"`
	SessionTokenEndpoint string `json:"sessionTokenEndpoint,omitempty"`
	CurrentURL           string `json:"currentUrl,omitempty"`
	Testnet              bool   `json:"testnet,omitempty"`
}

// PaymentOption is one accepted payment option of a route offering
// several (different networks, schemes, or prices for the same
// resource).
type PaymentOption struct {
	Scheme            string                 `json:"scheme"`
	PayTo             string                 `json:"payTo"`
	Price             x402.Price             `json:"price"`
	Network           x402.Network           `json:"network"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentOptions is a route's list of accepted payment options.
type PaymentOptions []PaymentOption

// RouteConfig is one protected route's payment terms plus its
// HTTP-facing metadata. The single-option fields cover the common case;
// Accepts, when set, wins and offers every listed option.
type RouteConfig struct {
	Scheme            string                 `json:"scheme"`
	PayTo             string                 `json:"payTo"`
	Price             x402.Price             `json:"price"`
	Network           x402.Network           `json:"network"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`

	// Accepts lists multiple payment options; overrides the
	// single-option fields above when non-empty.
	Accepts PaymentOptions `json:"accepts,omitempty"`

	Resource          string      `json:"resource,omitempty"`
	Description       string      `json:"description,omitempty"`
	MimeType          string      `json:"mimeType,omitempty"`
	CustomPaywallHTML string      `json:"customPaywallHtml,omitempty"`
	Discoverable      bool        `json:"discoverable,omitempty"`
	InputSchema       interface{} `json:"inputSchema,omitempty"`
	OutputSchema      interface{} `json:"outputSchema,omitempty"`
}

// RoutesConfig maps route patterns ("GET /api/*", "/exact/path") to their
// payment terms.
type RoutesConfig map[string]RouteConfig

// CompiledRoute is a pattern compiled for matching.
type CompiledRoute struct {
	Verb   string
	Regex  *regexp.Regexp
	Config RouteConfig
}

// ============================================================================
// Request processing types
// ============================================================================

// HTTPRequestContext is the request as the payment pipeline sees it.
type HTTPRequestContext struct {
	Adapter       HTTPAdapter
	Path          string
	Method        string
	PaymentHeader string
}

// HTTPResponseInstructions tells the framework binding what to send.
type HTTPResponseInstructions struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    interface{}       `json:"body,omitempty"`
	IsHTML  bool              `json:"isHtml,omitempty"`
}

// HTTPProcessResult is the pipeline's verdict on a request.
type HTTPProcessResult struct {
	Type                string
	Response            *HTTPResponseInstructions
	PaymentPayload      *x402.PaymentPayload
	PaymentRequirements *x402.PaymentRequirements
}

// Result types.
const (
	// ResultNoPaymentRequired: the route isn't protected, pass through.
	ResultNoPaymentRequired = "no-payment-required"
	// ResultPaymentVerified: run the handler, then ProcessSettlement.
	ResultPaymentVerified = "payment-verified"
	// ResultPaymentError: send Response (a 402) and stop.
	ResultPaymentError = "payment-error"
)

// ============================================================================
// x402HTTPResourceService
// ============================================================================

// x402HTTPResourceService wraps the core resource service with the HTTP
// boundary: route matching, payment-header extraction, 402 construction
// (JSON for machines, paywall HTML for browsers), and settlement headers.
type x402HTTPResourceService struct {
	*x402.X402ResourceService
	compiledRoutes  []CompiledRoute
	paywallProvider PaywallProvider
}

// Newx402HTTPResourceService builds an HTTP resource service over the
// given routes. Patterns compile once, here; matching is pure regex at
// request time.
func Newx402HTTPResourceService(routes RoutesConfig, opts ...x402.ResourceServiceOption) *x402HTTPResourceService {
	service := &x402HTTPResourceService{
		X402ResourceService: x402.Newx402ResourceService(opts...),
		compiledRoutes:      make([]CompiledRoute, 0, len(routes)),
	}

	for pattern, config := range routes {
		verb, regex := parseRoutePattern(pattern)
		service.compiledRoutes = append(service.compiledRoutes, CompiledRoute{
			Verb:   verb,
			Regex:  regex,
			Config: config,
		})
	}

	return service
}

// ProcessHTTPRequest runs the payment gate for one request: match the
// route, decode any payment header, build requirements, and verify.
// Settlement happens later (ProcessSettlement), after the handler
// produced a successful response.
func (s *x402HTTPResourceService) ProcessHTTPRequest(ctx context.Context, reqCtx HTTPRequestContext, paywallConfig *PaywallConfig) HTTPProcessResult {
	routeConfig := s.getRouteConfig(reqCtx.Path, reqCtx.Method)
	if routeConfig == nil {
		return HTTPProcessResult{Type: ResultNoPaymentRequired}
	}

	paymentPayload := s.extractPayment(reqCtx.Adapter)

	requirements, err := s.buildRouteRequirements(ctx, routeConfig)
	if err != nil {
		return HTTPProcessResult{
			Type: ResultPaymentError,
			Response: &HTTPResponseInstructions{
				Status:  500,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    map[string]string{"error": err.Error()},
			},
		}
	}

	resourceInfo := x402.ResourceInfo{
		URL:         reqCtx.Adapter.GetURL(),
		Description: routeConfig.Description,
		MimeType:    routeConfig.MimeType,
	}

	// paymentRequired402 builds the ResultPaymentError verdict for the
	// three rejection paths below.
	paymentRequired402 := func(message string, browserEligible bool) HTTPProcessResult {
		paymentRequired := s.CreatePaymentRequiredResponse(requirements, resourceInfo, message, nil)

		customHTML := ""
		isBrowser := false
		if browserEligible {
			customHTML = routeConfig.CustomPaywallHTML
			isBrowser = s.isWebBrowser(reqCtx.Adapter)
		}

		return HTTPProcessResult{
			Type:     ResultPaymentError,
			Response: s.createHTTPResponse(paymentRequired, isBrowser, paywallConfig, customHTML),
		}
	}

	if paymentPayload == nil {
		// First (unpaid) request: the canonical 402, paywall-eligible.
		return paymentRequired402("Payment required", true)
	}

	matching := s.FindMatchingRequirements(requirements, *paymentPayload)
	if matching == nil {
		return paymentRequired402("No matching payment requirements", false)
	}

	verifyResult, err := s.VerifyPayment(ctx, *paymentPayload, *matching)
	if err != nil || !verifyResult.IsValid {
		message := "Payment verification failed"
		if err != nil {
			message = err.Error()
		} else if verifyResult.InvalidReason != "" {
			message = verifyResult.InvalidReason
		}
		return paymentRequired402(message, false)
	}

	return HTTPProcessResult{
		Type:                ResultPaymentVerified,
		PaymentPayload:      paymentPayload,
		PaymentRequirements: matching,
	}
}

// ProcessSettlement settles a verified payment once the handler finished.
// Error responses are not billed; the caller gets the settlement headers
// to attach.
func (s *x402HTTPResourceService) ProcessSettlement(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements, responseStatus int) (map[string]string, error) {
	if responseStatus >= 400 {
		return nil, nil
	}

	settleResult, err := s.SettlePayment(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}

	return s.createSettlementHeaders(settleResult), nil
}

// ============================================================================
// Request inspection
// ============================================================================

// buildRouteRequirements expands a route's payment terms into concrete
// requirements: every option of a multi-option route, or the route's
// single-option fields.
func (s *x402HTTPResourceService) buildRouteRequirements(ctx context.Context, routeConfig *RouteConfig) ([]x402.PaymentRequirements, error) {
	options := routeConfig.Accepts
	if len(options) == 0 {
		options = PaymentOptions{{
			Scheme:            routeConfig.Scheme,
			PayTo:             routeConfig.PayTo,
			Price:             routeConfig.Price,
			Network:           routeConfig.Network,
			MaxTimeoutSeconds: routeConfig.MaxTimeoutSeconds,
		}}
	}

	var requirements []x402.PaymentRequirements
	for _, option := range options {
		built, err := s.BuildPaymentRequirements(ctx, x402.ResourceConfig{
			Scheme:            option.Scheme,
			PayTo:             option.PayTo,
			Price:             option.Price,
			Network:           option.Network,
			MaxTimeoutSeconds: option.MaxTimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		requirements = append(requirements, built...)
	}
	return requirements, nil
}

// RegisterPaywallProvider installs a custom browser paywall renderer,
// replacing the built-in EVM/SVM templates.
func (s *x402HTTPResourceService) RegisterPaywallProvider(provider PaywallProvider) *x402HTTPResourceService {
	s.paywallProvider = provider
	return s
}

// getRouteConfig returns a copy of the first route config whose verb and
// pattern match.
func (s *x402HTTPResourceService) getRouteConfig(path, method string) *RouteConfig {
	normalizedPath := normalizePath(path)
	upperMethod := strings.ToUpper(method)

	for _, route := range s.compiledRoutes {
		if route.Verb != "*" && route.Verb != upperMethod {
			continue
		}
		if route.Regex.MatchString(normalizedPath) {
			config := route.Config
			return &config
		}
	}

	return nil
}

// paymentHeaderNames are the request headers a payment may arrive in, in
// priority order (v2 first). Both casings are probed because adapters
// differ in how they expose header lookup.
var paymentHeaderNames = []string{"PAYMENT-SIGNATURE", "payment-signature", "X-PAYMENT", "x-payment"}

// extractPayment decodes the first parseable payment header, nil when the
// request carries none.
func (s *x402HTTPResourceService) extractPayment(adapter HTTPAdapter) *x402.PaymentPayload {
	for _, name := range paymentHeaderNames {
		header := adapter.GetHeader(name)
		if header == "" {
			continue
		}
		if payload, err := decodePaymentSignatureHeader(header); err == nil {
			return &payload
		}
	}
	return nil
}

// isWebBrowser sniffs for an interactive browser (gets the paywall) vs. a
// programmatic client (gets JSON).
func (s *x402HTTPResourceService) isWebBrowser(adapter HTTPAdapter) bool {
	return strings.Contains(adapter.GetAcceptHeader(), "text/html") &&
		strings.Contains(adapter.GetUserAgent(), "Mozilla")
}

// ============================================================================
// Response construction
// ============================================================================

// createHTTPResponse renders the 402: paywall HTML for browsers, JSON
// with the PAYMENT-REQUIRED header for everyone else.
func (s *x402HTTPResourceService) createHTTPResponse(paymentRequired x402.PaymentRequired, isWebBrowser bool, paywallConfig *PaywallConfig, customHTML string) *HTTPResponseInstructions {
	if isWebBrowser {
		return &HTTPResponseInstructions{
			Status:  402,
			Headers: map[string]string{"Content-Type": "text/html"},
			Body:    s.generatePaywallHTMLV2(paymentRequired, paywallConfig, customHTML),
			IsHTML:  true,
		}
	}

	return &HTTPResponseInstructions{
		Status: 402,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"PAYMENT-REQUIRED": encodePaymentRequiredHeader(paymentRequired),
		},
	}
}

// createSettlementHeaders renders the settlement result as the response
// header the client reads back.
func (s *x402HTTPResourceService) createSettlementHeaders(response x402.SettleResponse) map[string]string {
	return map[string]string{
		"PAYMENT-RESPONSE": encodePaymentResponseHeader(response),
	}
}

// generatePaywallHTMLV2 renders the browser paywall through the
// provider chain: a route's custom HTML wins outright, then a registered
// provider, then the built-in per-network templates.
func (s *x402HTTPResourceService) generatePaywallHTMLV2(paymentRequired x402.PaymentRequired, config *PaywallConfig, customHTML string) string {
	if customHTML != "" {
		return customHTML
	}

	if s.paywallProvider != nil {
		if page := s.paywallProvider.GenerateHTML(paymentRequired, config); page != "" {
			return page
		}
	}

	return DefaultPaywallProvider().GenerateHTML(paymentRequired, config)
}

// getDisplayAmount renders the first accepted option's amount in whole
// units for the paywall, assuming the 6 decimals of the stablecoins this
// paywall fronts. Unparseable amounts display as zero.
func (s *x402HTTPResourceService) getDisplayAmount(paymentRequired x402.PaymentRequired) float64 {
	if len(paymentRequired.Accepts) == 0 {
		return 0.0
	}

	amount, err := strconv.ParseFloat(paymentRequired.Accepts[0].Amount, 64)
	if err != nil {
		return 0.0
	}
	return amount / 1_000_000
}

// ============================================================================
// Route pattern compilation
// ============================================================================

// pathParamPattern matches [param] segments in a (quoted) route pattern.
var pathParamPattern = regexp.MustCompile(`\\\[([^\]]+)\\\]`)

// multiSlashPattern collapses runs of slashes during normalization.
var multiSlashPattern = regexp.MustCompile(`/+`)

// parseRoutePattern compiles "GET /api/users/[id]" style patterns: an
// optional leading verb, * wildcards spanning anything, [param] segments
// matching one path element.
func parseRoutePattern(pattern string) (string, *regexp.Regexp) {
	verb, path := "*", pattern
	if parts := strings.Fields(pattern); len(parts) == 2 {
		verb = strings.ToUpper(parts[0])
		path = parts[1]
	}

	quoted := regexp.QuoteMeta(path)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*?`)
	quoted = pathParamPattern.ReplaceAllString(quoted, `[^/]+`)

	return verb, regexp.MustCompile("^" + quoted + "$")
}

// normalizePath canonicalizes a request path before matching: strip
// query/fragment, decode percent escapes, collapse slashes, drop the
// trailing slash.
func normalizePath(path string) string {
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}

	path = strings.ReplaceAll(path, `\`, `/`)
	path = multiSlashPattern.ReplaceAllString(path, `/`)
	path = strings.TrimSuffix(path, `/`)

	if path == "" {
		return "/"
	}
	return path
}
