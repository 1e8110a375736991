// Package vrf requests and verifies randomness for vault operations. The
// local commitment scheme is a stand-in pending a genuine on-chain VRF
// oracle: the router's verdict is authoritative whenever it is reachable,
// and the local recomputation only covers a router outage.
package vrf

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"

	"obscura-core/internal/config"
	"obscura-core/internal/derive"
	"obscura-core/internal/domain"
	"obscura-core/internal/observability"
	"obscura-core/internal/router"
)

// seedLen is the size of a generated seed.
const seedLen = 32

// Service issues verifiable-randomness requests through the execution
// router.
type Service struct {
	cfg     config.Config
	router  *router.Router
	logger  *log.Logger
	metrics *observability.Metrics

	// readRand allows tests to fix the generated seed.
	readRand func(b []byte) (int, error)
}

// Option configures Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service bound to one router instance.
func NewService(cfg config.Config, r *router.Router, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		router:   r,
		readRand: rand.Read,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[vrf] ", log.LstdFlags)
	}
	return s
}

// RequestRandomness derives the requester's VRF account, computes the
// randomness commitment, and submits it for verification. With a nil
// seed, 32 cryptographically random bytes are generated.
func (s *Service) RequestRandomness(ctx context.Context, requester string, seed []byte) (*domain.VrfResult, error) {
	if seed == nil {
		seed = make([]byte, seedLen)
		if _, err := s.readRand(seed); err != nil {
			return nil, fmt.Errorf("generate seed: %w", err)
		}
	}
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty seed")
	}
	if len(seed) != seedLen {
		// Normalize caller seeds so the proof layout stays fixed-width.
		h := sha256.Sum256(seed)
		seed = h[:]
	}

	vrfAccount, err := derive.VrfAccountPDA(requester, s.cfg.VrfProgramOrDefault())
	if err != nil {
		return nil, fmt.Errorf("derive vrf account: %w", err)
	}

	randomness, proof := commitment(seed)
	if s.metrics != nil {
		s.metrics.VrfRequests.Inc()
	}

	result := &domain.VrfResult{
		Randomness: randomness,
		Proof:      proof,
		VrfAccount: &vrfAccount,
	}

	// Register the request with the router's oracle. Its slot anchors the
	// randomness; a registration failure is a write-path error.
	resp, err := s.router.Rollup().RequestVrf(ctx, vrfAccount, base64.StdEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("request vrf: %w", err)
	}
	result.Slot = resp.Slot

	result.Verified = s.verifyAuthoritative(ctx, vrfAccount, proof, randomness)
	return result, nil
}

// Verify checks a proof/randomness pair. Empty inputs verify false, never
// error.
func (s *Service) Verify(ctx context.Context, vrfAccount string, proof, randomness []byte) bool {
	if len(proof) == 0 || len(randomness) == 0 {
		return false
	}
	return s.verifyAuthoritative(ctx, vrfAccount, proof, randomness)
}

// verifyAuthoritative asks the router first and falls back to the local
// recomputation when the router cannot answer.
func (s *Service) verifyAuthoritative(ctx context.Context, vrfAccount string, proof, randomness []byte) bool {
	ok, err := s.router.Rollup().VerifyVrf(ctx, vrfAccount,
		base64.StdEncoding.EncodeToString(proof),
		base64.StdEncoding.EncodeToString(randomness),
	)
	if err != nil {
		s.logger.Printf("router verify unavailable, using local check: %v", err)
		return verifyLocal(proof, randomness)
	}
	return ok
}

// commitment computes randomness = SHA-256(seed) and a proof binding the
// seed to it: seed followed by SHA-256(randomness || seed).
func commitment(seed []byte) (randomness, proof []byte) {
	r := sha256.Sum256(seed)

	h := sha256.New()
	h.Write(r[:])
	h.Write(seed)

	proof = make([]byte, 0, len(seed)+sha256.Size)
	proof = append(proof, seed...)
	proof = append(proof, h.Sum(nil)...)
	return r[:], proof
}

// verifyLocal recomputes the expected proof from the randomness and the
// seed carried in the proof's first 32 bytes.
func verifyLocal(proof, randomness []byte) bool {
	if len(proof) < seedLen+sha256.Size {
		return false
	}
	seed := proof[:seedLen]

	r := sha256.Sum256(seed)
	if !bytes.Equal(r[:], randomness) {
		return false
	}

	h := sha256.New()
	h.Write(randomness)
	h.Write(seed)
	return bytes.Equal(h.Sum(nil), proof[seedLen:seedLen+sha256.Size])
}
