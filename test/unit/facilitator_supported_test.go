package unit_test

import (
	"context"
	"testing"

	x402 "github.com/x402go/x402"
)

// signersFacilitator is a facilitator mechanism that advertises
// facilitator-controlled signer addresses per network.
type signersFacilitator struct {
	signers []string
}

func (f *signersFacilitator) Scheme() string { return "exact" }

func (f *signersFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return map[string]interface{}{"feePayer": "fp1"}
}

func (f *signersFacilitator) GetSigners(network x402.Network) []string {
	return f.signers
}

func (f *signersFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return x402.VerifyResponse{IsValid: true}, nil
}

func (f *signersFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	return x402.SettleResponse{Success: true, Network: requirements.Network}, nil
}

func TestGetSupportedCollectsSigners(t *testing.T) {
	facilitator := x402.Newx402Facilitator()
	facilitator.RegisterScheme("solana:mainnet", &signersFacilitator{signers: []string{"fp1", "fp2"}})

	supported := facilitator.GetSupported()

	if len(supported.Kinds) != 1 {
		t.Fatalf("Expected 1 supported kind, got %d", len(supported.Kinds))
	}
	if supported.Kinds[0].Extra["feePayer"] != "fp1" {
		t.Errorf("Expected extra feePayer fp1, got %v", supported.Kinds[0].Extra)
	}

	signers, ok := supported.Signers["solana:mainnet"]
	if !ok {
		t.Fatal("Expected signers for solana:mainnet")
	}
	if len(signers) != 2 || signers[0] != "fp1" || signers[1] != "fp2" {
		t.Errorf("Unexpected signers: %v", signers)
	}
}

func TestGetSupportedSkipsEmptySigners(t *testing.T) {
	facilitator := x402.Newx402Facilitator()
	facilitator.RegisterScheme("eip155:8453", &signersFacilitator{})

	supported := facilitator.GetSupported()

	if _, ok := supported.Signers["eip155:8453"]; ok {
		t.Error("Expected no signers entry when the mechanism has none")
	}
}
