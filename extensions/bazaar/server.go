package bazaar

import (
	"github.com/x402go/x402/extensions/types"
)

// TransportContext is the sliver of transport knowledge bazaar needs when
// publishing a declaration: which method invokes the resource. Any value
// with a TransportMethod() string satisfies it (the HTTP adapter's
// request context does), keeping this package free of transport imports.
type TransportContext interface {
	TransportMethod() string
}

// bazaarResourceServerExtension is the ResourceExtension registration for
// discovery: before a declaration goes out in a PaymentRequired, the
// transport's actual method is stamped into the input shape (a resource
// declared generically still advertises how it is really called), and the
// schema's required list is patched to demand it.
type bazaarResourceServerExtension struct{}

// BazaarResourceServerExtension is the registerable extension value.
var BazaarResourceServerExtension = &bazaarResourceServerExtension{}

func (e *bazaarResourceServerExtension) Key() string {
	return types.BAZAAR
}

func (e *bazaarResourceServerExtension) EnrichDeclaration(
	declaration interface{},
	transportContext interface{},
) interface{} {
	transport, ok := transportContext.(TransportContext)
	if !ok {
		return declaration
	}
	extension, ok := declaration.(types.DiscoveryExtension)
	if !ok {
		return declaration
	}

	stampMethod(&extension, transport.TransportMethod())
	requireMethodInSchema(extension.Schema)

	return extension
}

// stampMethod writes the transport method into whichever input variant
// the declaration carries.
func stampMethod(extension *types.DiscoveryExtension, method string) {
	switch input := extension.Info.Input.(type) {
	case types.QueryInput:
		input.Method = types.QueryParamMethods(method)
		extension.Info.Input = input
	case types.BodyInput:
		input.Method = types.BodyMethods(method)
		extension.Info.Input = input
	}
}

// requireMethodInSchema appends "method" to the input schema's required
// list when it isn't there yet.
func requireMethodInSchema(schema map[string]interface{}) {
	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}
	input, ok := properties["input"].(map[string]interface{})
	if !ok {
		return
	}
	required, ok := input["required"].([]string)
	if !ok {
		return
	}

	for _, field := range required {
		if field == "method" {
			return
		}
	}
	input["required"] = append(required, "method")
}
