// Command example walks through the EVM mechanism's two protocol
// generations side by side: registration, capability checks, price
// parsing, and the version gates on requirement enhancement.
package main

import (
	"context"
	"fmt"
	"log"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
	evmv1 "github.com/x402go/x402/mechanisms/evm/v1"
)

func main() {
	requirements := x402.PaymentRequirements{
		Scheme:  "exact",
		Network: "base",
		Asset:   "USDC",
		Amount:  "1000000", // 1 USDC, atomic
		PayTo:   "0x9876543210987654321098765432109876543210",
		Extra: map[string]interface{}{
			"name":    "USD Coin",
			"version": "2",
		},
	}

	// Current protocol: one registration per network, nil signer just for
	// the walkthrough.
	fmt.Println("=== V2 ===")
	clientV2 := x402.Newx402Client()
	evm.RegisterClient(clientV2, nil, "base")
	fmt.Printf("V2 client can pay: %v\n", clientV2.CanPay(2, []x402.PaymentRequirements{requirements}))

	// Legacy protocol: bare network names, v1 registrations.
	fmt.Println("\n=== V1 ===")
	clientV1 := x402.Newx402Client()
	evmv1.RegisterClient(clientV1, nil)
	fmt.Printf("V1 client can pay: %v\n", clientV1.CanPay(1, []x402.PaymentRequirements{requirements}))

	// Server side: both generations register through returned options.
	serviceV2 := x402.Newx402ResourceService(evm.RegisterServer("base")...)
	serviceV1 := x402.Newx402ResourceService(evmv1.RegisterService()...)
	_, _ = serviceV2, serviceV1

	// Price parsing differs per generation: v2 lands on the raw token
	// address, v1 on the erc20: notation.
	fmt.Println("\n=== ParsePrice ===")
	price, network := "5.00", x402.Network("base")

	if parsed, err := evm.NewExactEvmService().ParsePrice(price, network); err != nil {
		log.Printf("V2 ParsePrice error: %v", err)
	} else {
		fmt.Printf("V2: %s %s\n", parsed.Amount, parsed.Asset)
	}

	if parsed, err := evmv1.NewExactEvmServiceV1().ParsePrice(price, network); err != nil {
		log.Printf("V1 ParsePrice error: %v", err)
	} else {
		fmt.Printf("V1: %s %s\n", parsed.Amount, parsed.Asset)
	}

	// Each service refuses the other generation's supported kinds.
	fmt.Println("\n=== Version gates ===")
	ctx := context.Background()
	kindV1 := x402.SupportedKind{X402Version: 1, Scheme: "exact", Network: "base"}
	kindV2 := x402.SupportedKind{X402Version: 2, Scheme: "exact", Network: "base"}

	if _, err := evm.NewExactEvmService().EnhancePaymentRequirements(ctx, requirements, kindV1, nil); err != nil {
		fmt.Printf("V2 service with a v1 kind: %v\n", err)
	}
	if _, err := evmv1.NewExactEvmServiceV1().EnhancePaymentRequirements(ctx, requirements, kindV2, nil); err != nil {
		fmt.Printf("V1 service with a v2 kind: %v\n", err)
	}
}
