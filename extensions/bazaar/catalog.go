package bazaar

import (
	"sync"
	"time"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/extensions/types"
)

// Pagination describes one page of the discovery catalog.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// DiscoveryResourcesResponse is the body served at GET /discovery/resources.
type DiscoveryResourcesResponse struct {
	X402Version int                        `json:"x402Version"`
	Items       []types.DiscoveredResource `json:"items"`
	Pagination  Pagination                 `json:"pagination"`
}

// Catalog is a facilitator-side registry of paid resources observed in
// verified payments. Entries are keyed by (scheme, network, payTo, url) so
// repeat payments for the same resource update one entry instead of
// accumulating duplicates.
type Catalog struct {
	mu        sync.RWMutex
	resources map[string]*types.DiscoveredResource
	order     []string // insertion order for stable listing
}

// NewCatalog creates an empty discovery catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		resources: make(map[string]*types.DiscoveredResource),
	}
}

func catalogKey(scheme, network, payTo, url string) string {
	return scheme + "|" + network + "|" + payTo + "|" + url
}

// Add inserts or refreshes a catalog entry.
func (c *Catalog) Add(resource types.DiscoveredResource) {
	key := catalogKey(resource.Scheme, resource.Network, resource.PayTo, resource.URL)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.resources[key]; ok {
		resource.LastSeen = time.Now().Unix()
		*existing = resource
		return
	}

	resource.LastSeen = time.Now().Unix()
	c.resources[key] = &resource
	c.order = append(c.order, key)
}

// Len returns the number of cataloged resources.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resources)
}

// List returns one page of the catalog in first-discovered order.
// A limit of 0 (or negative) defaults to 100.
func (c *Catalog) List(limit, offset int) DiscoveryResourcesResponse {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.order)
	items := []types.DiscoveredResource{}
	for i := offset; i < total && len(items) < limit; i++ {
		items = append(items, *c.resources[c.order[i]])
	}

	return DiscoveryResourcesResponse{
		X402Version: x402.ProtocolVersion,
		Items:       items,
		Pagination:  Pagination{Limit: limit, Offset: offset, Total: total},
	}
}

// AfterVerifyHook returns a facilitator after-verify hook that catalogs the
// resource behind every successfully verified payment carrying discovery
// info. Extraction or validation problems never fail the verify pipeline;
// the payment simply isn't cataloged.
func (c *Catalog) AfterVerifyHook() x402.FacilitatorAfterVerifyHook {
	return func(hookCtx x402.FacilitatorVerifyResultContext) error {
		if !hookCtx.Result.IsValid {
			return nil
		}

		info, err := ExtractDiscoveryInfo(hookCtx.Payload, hookCtx.Requirements, true)
		if err != nil || info == nil {
			return nil
		}

		resource := types.DiscoveredResource{
			Scheme:  hookCtx.Requirements.Scheme,
			Network: string(hookCtx.Requirements.Network),
			PayTo:   hookCtx.Requirements.PayTo,
			Amount:  hookCtx.Requirements.Amount,
			Asset:   hookCtx.Requirements.Asset,
			Info:    info,
		}
		if hookCtx.Payload.Resource != nil {
			resource.URL = hookCtx.Payload.Resource.URL
			resource.Description = hookCtx.Payload.Resource.Description
			resource.MimeType = hookCtx.Payload.Resource.MimeType
		}
		if resource.URL == "" {
			return nil
		}

		c.Add(resource)
		return nil
	}
}
