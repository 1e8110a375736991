// Package attestation checks TEE attestations for privately executed
// transactions. The policy is existence-implies-attestation: a signature
// known to either the base layer or the rollup namespace is accepted, and
// verifying the actual enclave measurement stays with the upstream rollup
// infrastructure.
package attestation

import (
	"context"
	"log"

	"obscura-core/internal/observability"
	"obscura-core/internal/router"
)

// Verifier answers TEE attestation queries for transaction signatures.
type Verifier struct {
	router  *router.Router
	logger  *log.Logger
	metrics *observability.Metrics
}

// Option configures Verifier.
type Option func(*Verifier)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(v *Verifier) {
		v.logger = l
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// NewVerifier creates a Verifier bound to one router instance.
func NewVerifier(r *router.Router, opts ...Option) *Verifier {
	v := &Verifier{router: r}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = log.New(log.Writer(), "[attestation] ", log.LstdFlags)
	}
	return v
}

// VerifyTEEAttestation reports whether the transaction carries a valid TEE
// attestation. An empty signature is rejected immediately. The signature
// is looked up on the base layer first, then in the rollup namespace;
// lookup failures degrade to false (read path).
func (v *Verifier) VerifyTEEAttestation(ctx context.Context, signature string) bool {
	if signature == "" {
		return false
	}

	found := v.router.FindTransaction(ctx, signature) != nil
	if !found {
		// The router may still vouch for rollup-private transactions that
		// neither public namespace exposes.
		attested, err := v.router.Rollup().VerifyTEEAttestation(ctx, signature)
		if err != nil {
			v.logger.Printf("attestation lookup %s: %v", signature, err)
		} else {
			found = attested
		}
	}

	if v.metrics != nil {
		verdict := "rejected"
		if found {
			verdict = "accepted"
		}
		v.metrics.AttestationChecks.WithLabelValues(verdict).Inc()
	}
	return found
}
