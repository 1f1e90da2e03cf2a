package x402

import (
	"fmt"
	"strings"
)

// ValidatePaymentPayload performs basic validation on a payment payload
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version < 1 || p.X402Version > 2 {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.Accepted.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.Accepted.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return nil
}

// ValidatePaymentRequirements performs basic validation on payment requirements
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	// Note: Amount check is skipped for v1 compatibility (v1 uses maxAmountRequired)
	// Version-specific facilitators will validate amount fields as needed
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// patternSpecificity ranks a registered network pattern: 2 for an exact
// CAIP-2 identifier, 1 for a family wildcard ("eip155:*"), 0 for the
// universal wildcard ("*:*").
func patternSpecificity(pattern Network) int {
	s := string(pattern)
	if s == "*:*" {
		return 0
	}
	if strings.HasSuffix(s, ":*") {
		return 1
	}
	return 2
}

// findByNetworkAndScheme finds a scheme implementation for a given
// network/scheme combination, resolving wildcard patterns registered at
// varying specificity. When multiple registered patterns match, exact
// beats family-wildcard beats universal; ties within a tier resolve by
// map iteration order.
func findByNetworkAndScheme[T any](networkMap map[Network]map[string]T, scheme string, network Network) T {
	var zero T
	var best T
	bestSpecificity := -1

	for registeredNetwork, schemeMap := range networkMap {
		impl, hasScheme := schemeMap[scheme]
		if !hasScheme {
			continue
		}
		if !network.Match(registeredNetwork) {
			continue
		}
		specificity := patternSpecificity(registeredNetwork)
		if specificity > bestSpecificity {
			bestSpecificity = specificity
			best = impl
		}
	}

	if bestSpecificity < 0 {
		return zero
	}
	return best
}

// registeredSchemesFor flattens a version's network->scheme->client map into
// the SchemeRegistration list used to report what was actually available
// when a requested (network, scheme) pair couldn't be found.
func registeredSchemesFor(versionSchemes map[Network]map[string]SchemeNetworkClient, version int) []SchemeRegistration {
	var out []SchemeRegistration
	for network, schemeMap := range versionSchemes {
		for _, client := range schemeMap {
			out = append(out, SchemeRegistration{Network: network, Client: client, X402Version: version})
		}
	}
	return out
}

// findSchemesByNetwork finds the scheme map registered for the pattern that
// most specifically matches network.
func findSchemesByNetwork[T any](networkMap map[Network]map[string]T, network Network) map[string]T {
	var best map[string]T
	bestSpecificity := -1

	for registeredNetwork, schemeMap := range networkMap {
		if !network.Match(registeredNetwork) {
			continue
		}
		specificity := patternSpecificity(registeredNetwork)
		if specificity > bestSpecificity {
			bestSpecificity = specificity
			best = schemeMap
		}
	}

	return best
}
