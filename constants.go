package x402

// ProtocolVersion is the current (v2, "accepted"-nested) wire version.
const ProtocolVersion = 2

// ProtocolVersionV1 is the legacy (top-level scheme/network) wire version,
// kept for coexistence with clients and servers that haven't migrated.
const ProtocolVersionV1 = 1

// DefaultMaxTimeoutSeconds is used when a ResourceConfig omits MaxTimeoutSeconds.
const DefaultMaxTimeoutSeconds = 300

// DefaultSupportedCacheTTLSeconds is how long a ResourceServer trusts a
// facilitator's GetSupported response before it must be refreshed via Initialize.
const DefaultSupportedCacheTTLSeconds = 300
