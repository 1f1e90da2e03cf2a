// Package server exposes the SVM exact-scheme server role under the same
// exact/{client,facilitator,server} layout the hypercore mechanism uses.
package server

import (
	svm "github.com/x402go/x402/mechanisms/svm"
)

// ExactSvmScheme is the SVM exact-scheme SchemeNetworkService.
type ExactSvmScheme = svm.ExactSvmService

// NewExactSvmScheme creates a new ExactSvmScheme.
func NewExactSvmScheme() *ExactSvmScheme {
	return svm.NewExactSvmService()
}
