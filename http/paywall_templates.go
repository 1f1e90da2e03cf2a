package http

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/x402go/x402/types"
)

// Built-in paywall templates. They are deliberately skeletal: the real
// work happens in the injected window.x402 configuration, which a wallet
// widget script reads to drive the payment flow. Deployments wanting a
// branded page supply their own template through a PaywallNetworkHandler.

// EVMPaywallTemplate is the built-in page for eip155:* networks.
const EVMPaywallTemplate = `<!DOCTYPE html>
<html>
<head>
	<title>Payment Required</title>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body>
	<div id="x402-paywall" data-network-family="eip155">
		<h1>Payment Required</h1>
		<p>This resource requires an on-chain payment. Connect an EVM wallet to continue.</p>
		<div id="payment-widget"></div>
	</div>
</body>
</html>`

// SVMPaywallTemplate is the built-in page for solana:* networks.
const SVMPaywallTemplate = `<!DOCTYPE html>
<html>
<head>
	<title>Payment Required</title>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body>
	<div id="x402-paywall" data-network-family="solana">
		<h1>Payment Required</h1>
		<p>This resource requires an on-chain payment. Connect a Solana wallet to continue.</p>
		<div id="payment-widget"></div>
	</div>
</body>
</html>`

// injectPaywallConfig inserts the window.x402 configuration script into a
// template, just before </body> (appended when the template has none).
// String values are HTML-escaped; the payment requirements travel as
// embedded JSON.
func injectPaywallConfig(template string, paymentRequired types.PaymentRequired, config *PaywallConfig) string {
	appName, appLogo, cdpClientKey, sessionTokenEndpoint, currentURL := "", "", "", "", ""
	testnet := false

	if config != nil {
		appName = config.AppName
		appLogo = config.AppLogo
		cdpClientKey = config.CDPClientKey
		sessionTokenEndpoint = config.SessionTokenEndpoint
		currentURL = config.CurrentURL
		testnet = config.Testnet
	}
	if currentURL == "" && paymentRequired.Resource != nil {
		currentURL = paymentRequired.Resource.URL
	}

	requirementsJSON, err := json.Marshal(paymentRequired)
	if err != nil {
		requirementsJSON = []byte("null")
	}

	script := fmt.Sprintf(`<script>
	window.x402 = {
		paymentRequired: %s,
		appName: "%s",
		appLogo: "%s",
		cdpClientKey: "%s",
		sessionTokenEndpoint: "%s",
		currentUrl: "%s",
		testnet: %t
	};
</script>`,
		string(requirementsJSON),
		html.EscapeString(appName),
		html.EscapeString(appLogo),
		html.EscapeString(cdpClientKey),
		html.EscapeString(sessionTokenEndpoint),
		html.EscapeString(currentURL),
		testnet,
	)

	if strings.Contains(template, "</body>") {
		return strings.Replace(template, "</body>", script+"\n</body>", 1)
	}
	return template + script
}
