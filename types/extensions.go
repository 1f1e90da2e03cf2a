package types

import x402 "github.com/x402go/x402"

// ResourceServiceExtension is the extension-enrichment contract a
// transport adapter hands to a resource service; it is the same contract
// the core server registers under the ResourceExtension name, re-exported
// here so adapter packages that only import types can still name it.
type ResourceServiceExtension = x402.ResourceExtension
