package unit_test

import (
	"errors"
	"testing"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/test/mocks/cash"
)

// TestSelectPaymentRequirementsUnregisteredScheme verifies that requesting a
// scheme/network the client has no mechanism for returns SchemeNotFoundError,
// not NoMatchingRequirementsError.
func TestSelectPaymentRequirementsUnregisteredScheme(t *testing.T) {
	client := x402.Newx402Client()
	client.RegisterScheme("x402:cash", cash.NewSchemeNetworkClient("John"))

	requirements := []x402.PaymentRequirements{
		{Scheme: "exact", Network: "eip155:8453", Asset: "USDC", Amount: "1", PayTo: "0xabc"},
	}

	_, err := client.SelectPaymentRequirements(2, requirements)
	if err == nil {
		t.Fatal("expected an error for an unregistered scheme/network")
	}

	var schemeErr *x402.SchemeNotFoundError
	if !errors.As(err, &schemeErr) {
		t.Fatalf("expected SchemeNotFoundError, got %T: %v", err, err)
	}

	if schemeErr.Scheme != "exact" || schemeErr.Network != "eip155:8453" {
		t.Errorf("expected error to report requested scheme/network, got scheme=%q network=%q", schemeErr.Scheme, schemeErr.Network)
	}
}

// TestSelectPaymentRequirementsPolicyExhaustion verifies that a registered
// scheme/network filtered out by a policy returns NoMatchingRequirementsError,
// not SchemeNotFoundError.
func TestSelectPaymentRequirementsPolicyExhaustion(t *testing.T) {
	rejectEverything := func(version int, requirements []x402.PaymentRequirements) []x402.PaymentRequirements {
		return nil
	}

	client := x402.Newx402Client(x402.WithPolicy(rejectEverything))
	client.RegisterScheme("x402:cash", cash.NewSchemeNetworkClient("John"))

	requirements := []x402.PaymentRequirements{
		cash.BuildPaymentRequirements("Company Co.", "USD", "1"),
	}

	_, err := client.SelectPaymentRequirements(2, requirements)
	if err == nil {
		t.Fatal("expected an error when a policy rejects all candidates")
	}

	var noMatchErr *x402.NoMatchingRequirementsError
	if !errors.As(err, &noMatchErr) {
		t.Fatalf("expected NoMatchingRequirementsError, got %T: %v", err, err)
	}

	var schemeErr *x402.SchemeNotFoundError
	if errors.As(err, &schemeErr) {
		t.Fatal("policy exhaustion must not surface as SchemeNotFoundError")
	}
}
