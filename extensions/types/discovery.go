// Package types holds the wire types shared by the protocol extensions
// (bazaar discovery, payment-identifier), kept separate from the core
// protocol types so transport adapters can depend on them without pulling
// in any extension logic.
package types

// BAZAAR is the extension key under which discovery info is declared in
// PaymentRequired.Extensions and echoed back in PaymentPayload.Extensions.
const BAZAAR = "bazaar"

// QueryParamMethods are the HTTP methods whose input travels in the query
// string.
type QueryParamMethods string

const (
	QueryMethodGet    QueryParamMethods = "GET"
	QueryMethodDelete QueryParamMethods = "DELETE"
)

// BodyMethods are the HTTP methods whose input travels in the request body.
type BodyMethods string

const (
	BodyMethodPost  BodyMethods = "POST"
	BodyMethodPut   BodyMethods = "PUT"
	BodyMethodPatch BodyMethods = "PATCH"
)

// BodyType describes how a body-input resource encodes its request body.
type BodyType string

const (
	BodyTypeJSON     BodyType = "json"
	BodyTypeFormData BodyType = "form-data"
)

// QueryInput describes a discoverable resource invoked via query parameters.
type QueryInput struct {
	Type        string                 `json:"type"` // always "http"
	Method      QueryParamMethods      `json:"method"`
	QueryParams map[string]interface{} `json:"queryParams,omitempty"`
}

// BodyInput describes a discoverable resource invoked via a request body.
type BodyInput struct {
	Type     string                 `json:"type"` // always "http"
	Method   BodyMethods            `json:"method"`
	BodyType BodyType               `json:"bodyType,omitempty"`
	Body     map[string]interface{} `json:"body,omitempty"`
}

// OutputInfo describes the shape of a discoverable resource's response.
type OutputInfo struct {
	Example interface{}            `json:"example,omitempty"`
	Schema  map[string]interface{} `json:"schema,omitempty"`
}

// DiscoveryInfo is the discovery payload a server declares for one
// resource: how to call it (Input is a QueryInput or BodyInput; it stays
// an interface{} because the two variants are distinguished by their
// method field on the wire) and what it returns.
type DiscoveryInfo struct {
	Input  interface{} `json:"input"`
	Output *OutputInfo `json:"output,omitempty"`
}

// DiscoveryExtension is the full bazaar extension declaration: the info
// payload plus the JSON Schema it must validate against.
type DiscoveryExtension struct {
	Info   DiscoveryInfo          `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}

// DiscoveredResource is one catalog entry observed by a facilitator: the
// resource metadata plus the payment parameters it was offered under.
type DiscoveredResource struct {
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	MimeType    string         `json:"mimeType,omitempty"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	PayTo       string         `json:"payTo"`
	Amount      string         `json:"amount,omitempty"`
	Asset       string         `json:"asset,omitempty"`
	Info        *DiscoveryInfo `json:"info,omitempty"`
	LastSeen    int64          `json:"lastSeen,omitempty"` // unix seconds
}
