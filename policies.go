package x402

import "math/big"

// Built-in payment policies. Policies filter or reorder the accepted
// payment options before the selector picks one; they never fabricate
// entries (every output element comes from the input).

// PreferNetwork returns a policy that stably moves options on network to
// the front of the candidate list, leaving relative order untouched
// otherwise. Nothing is filtered out, so a client that can't pay on the
// preferred network still falls through to the remaining options.
func PreferNetwork(network Network) PaymentPolicy {
	return func(version int, requirements []PaymentRequirements) []PaymentRequirements {
		preferred := make([]PaymentRequirements, 0, len(requirements))
		rest := make([]PaymentRequirements, 0, len(requirements))
		for _, req := range requirements {
			if req.Network.Match(network) {
				preferred = append(preferred, req)
			} else {
				rest = append(rest, req)
			}
		}
		return append(preferred, rest...)
	}
}

// PreferScheme returns a policy that stably moves options with the given
// scheme to the front of the candidate list.
func PreferScheme(scheme string) PaymentPolicy {
	return func(version int, requirements []PaymentRequirements) []PaymentRequirements {
		preferred := make([]PaymentRequirements, 0, len(requirements))
		rest := make([]PaymentRequirements, 0, len(requirements))
		for _, req := range requirements {
			if req.Scheme == scheme {
				preferred = append(preferred, req)
			} else {
				rest = append(rest, req)
			}
		}
		return append(preferred, rest...)
	}
}

// MaxAmount returns a policy that filters out options whose atomic amount
// exceeds cap. When asset is non-empty, only options for that asset are
// capped; other assets pass through unfiltered (their units aren't
// comparable). Options whose amount doesn't parse are dropped.
func MaxAmount(cap string, asset ...string) PaymentPolicy {
	capValue, capOK := new(big.Int).SetString(cap, 10)
	assetFilter := ""
	if len(asset) > 0 {
		assetFilter = asset[0]
	}

	return func(version int, requirements []PaymentRequirements) []PaymentRequirements {
		if !capOK {
			return requirements
		}

		filtered := make([]PaymentRequirements, 0, len(requirements))
		for _, req := range requirements {
			if assetFilter != "" && req.Asset != assetFilter {
				filtered = append(filtered, req)
				continue
			}

			amountStr := req.Amount
			if amountStr == "" {
				amountStr = req.MaxAmountRequired
			}
			amount, ok := new(big.Int).SetString(amountStr, 10)
			if !ok {
				continue
			}
			if amount.Cmp(capValue) <= 0 {
				filtered = append(filtered, req)
			}
		}
		return filtered
	}
}
