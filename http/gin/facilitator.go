package gin

import (
	"net/http"
	"strconv"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/extensions/bazaar"
	"github.com/gin-gonic/gin"
)

// facilitatorRequest is the body shape shared by POST /verify and
// POST /settle.
type facilitatorRequest struct {
	X402Version         int                      `json:"x402Version,omitempty"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// FacilitatorServerConfig configures the facilitator HTTP surface.
type FacilitatorServerConfig struct {
	// Catalog, when set, enables GET /discovery/resources backed by the
	// bazaar discovery catalog.
	Catalog *bazaar.Catalog
}

// FacilitatorServerOption configures RegisterFacilitatorRoutes.
type FacilitatorServerOption func(*FacilitatorServerConfig)

// WithDiscoveryCatalog enables the discovery endpoint backed by catalog.
func WithDiscoveryCatalog(catalog *bazaar.Catalog) FacilitatorServerOption {
	return func(c *FacilitatorServerConfig) {
		c.Catalog = catalog
	}
}

// RegisterFacilitatorRoutes mounts the facilitator's HTTP endpoints on a
// gin router: POST /verify, POST /settle, GET /supported, and (when a
// discovery catalog is configured) GET /discovery/resources.
//
// Payment failures are protocol results, not transport errors: a payment
// that fails to verify returns 200 with isValid=false, and a settle whose
// pipeline aborts returns 200 with success=false plus the reason, never a
// 5xx.
func RegisterFacilitatorRoutes(router gin.IRouter, facilitator *x402.X402Facilitator, opts ...FacilitatorServerOption) {
	config := &FacilitatorServerConfig{}
	for _, opt := range opts {
		opt(config)
	}

	router.POST("/verify", func(c *gin.Context) {
		var req facilitatorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		resp, err := facilitator.Verify(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
		if err != nil && !resp.IsValid && resp.InvalidReason == "" {
			resp = x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}
		}
		c.JSON(http.StatusOK, resp)
	})

	router.POST("/settle", func(c *gin.Context) {
		var req facilitatorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		resp, err := facilitator.Settle(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
		if err != nil && !resp.Success && resp.ErrorReason == "" {
			resp = x402.SettleResponse{
				Success:     false,
				ErrorReason: err.Error(),
				Transaction: "",
				Network:     req.PaymentRequirements.Network,
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	router.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, facilitator.GetSupported())
	})

	if config.Catalog != nil {
		router.GET("/discovery/resources", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
			offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
			c.JSON(http.StatusOK, config.Catalog.List(limit, offset))
		})
	}
}
