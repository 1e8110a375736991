// Package router decides which RPC endpoint serves a call and selects
// ephemeral-rollup validators. Two endpoints are configured: the base-layer
// RPC for reads and ordinary transactions, and the MagicBlock router RPC
// which auto-detects delegated accounts and forwards to the owning ER
// validator.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"obscura-core/internal/config"
	"obscura-core/internal/domain"
	"obscura-core/internal/observability"
	"obscura-core/internal/rpc"
	"obscura-core/internal/storage"
)

const (
	// ERConfirmationThresholdMs bounds the confirmation time under which a
	// router-submitted transaction is classified as rollup-executed. This
	// is an observability approximation, not a protocol guarantee.
	ERConfirmationThresholdMs = 200

	// LatencySentinelMs is assigned to validators whose health check
	// fails, keeping them selectable as a last resort instead of
	// silently vanishing from the candidate set.
	LatencySentinelMs = 9999

	// DefaultPollInterval is the gap between confirmation polls.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxPolls bounds the confirmation polling loop.
	DefaultMaxPolls = 30
)

// ProbeFunc measures round-trip latency to a validator endpoint.
type ProbeFunc func(ctx context.Context, endpoint string) (uint32, error)

// Router owns the two RPC clients and all routing decisions.
type Router struct {
	cfg    config.Config
	base   *rpc.Client
	router *rpc.Client
	ws     *rpc.WSClient
	probe  ProbeFunc

	logger  *log.Logger
	metrics *observability.Metrics
	samples storage.LatencySampleStore
}

// Option configures Router.
type Option func(*Router)

// WithClients injects the base and router RPC clients.
func WithClients(base, routerClient *rpc.Client) Option {
	return func(r *Router) {
		r.base = base
		r.router = routerClient
	}
}

// WithProbe overrides the latency probe.
func WithProbe(p ProbeFunc) Option {
	return func(r *Router) {
		r.probe = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithWSClient attaches a base-layer push-subscription client. When set,
// signature waits try a subscription first and fall back to polling.
func WithWSClient(ws *rpc.WSClient) Option {
	return func(r *Router) {
		r.ws = ws
	}
}

// WithLatencySampleStore attaches a store that receives probe results.
// Writes are best-effort and never fail a routing decision.
func WithLatencySampleStore(s storage.LatencySampleStore) Option {
	return func(r *Router) {
		r.samples = s
	}
}

// New creates a Router for the given configuration.
func New(cfg config.Config, opts ...Option) *Router {
	r := &Router{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.base == nil {
		r.base = rpc.NewClient(cfg.BaseRPCURL, rpc.WithAPIKey(cfg.APIKey))
	}
	if r.router == nil {
		r.router = rpc.NewClient(cfg.RouterRPCURL)
	}
	if r.probe == nil {
		r.probe = healthProbe
	}
	if r.logger == nil {
		r.logger = log.New(log.Writer(), "[router] ", log.LstdFlags)
	}
	return r
}

// Base returns the base-layer RPC client.
func (r *Router) Base() *rpc.Client {
	return r.base
}

// Rollup returns the router RPC client.
func (r *Router) Rollup() *rpc.Client {
	return r.router
}

// Config returns the router's network configuration.
func (r *Router) Config() config.Config {
	return r.cfg
}

// healthProbe times a getHealth round-trip against a validator endpoint.
func healthProbe(ctx context.Context, endpoint string) (uint32, error) {
	client := rpc.NewClient(endpoint,
		rpc.WithTimeout(rpc.HealthCheckTimeout),
		rpc.WithMaxRetries(0),
	)
	start := time.Now()
	if err := client.GetHealth(ctx); err != nil {
		return 0, err
	}
	return uint32(time.Since(start).Milliseconds()), nil
}

// AvailableValidators discovers and probes all known validators for the
// configured network. Results are recomputed on every call; nothing is
// cached across routing decisions. A discovery failure degrades to an
// empty list (read path).
func (r *Router) AvailableValidators(ctx context.Context) []domain.ValidatorInfo {
	candidates, err := r.fetchCandidates(ctx)
	if err != nil {
		r.logger.Printf("validator discovery failed: %v", err)
		return nil
	}

	infos := make([]domain.ValidatorInfo, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			latency, err := r.probe(ctx, c.endpoint)
			if err != nil {
				// Slow or unreachable validators stay selectable with a
				// sentinel latency.
				latency = LatencySentinelMs
			}
			infos[i] = c.toValidatorInfo(latency, true)
		}(i, c)
	}
	wg.Wait()

	r.recordLatencies(ctx, infos)
	return infos
}

// recordLatencies updates gauges and appends samples, best-effort.
func (r *Router) recordLatencies(ctx context.Context, infos []domain.ValidatorInfo) {
	now := time.Now().UnixMilli()
	samples := make([]*domain.LatencySample, 0, len(infos))
	for _, info := range infos {
		if r.metrics != nil {
			r.metrics.ValidatorLatency.WithLabelValues(info.Pubkey, info.Region).Set(float64(info.LatencyMs))
		}
		samples = append(samples, &domain.LatencySample{
			Validator:  info.Pubkey,
			Region:     info.Region,
			LatencyMs:  info.LatencyMs,
			Available:  info.Available,
			MeasuredAt: now,
		})
	}
	if r.samples != nil {
		if err := r.samples.InsertBulk(ctx, samples); err != nil {
			r.logger.Printf("store latency samples: %v", err)
		}
	}
}

// SelectClosestValidator returns the available validator with minimum
// measured latency. The TEE validator is excluded unless explicitly
// included. Returns nil iff the candidate set is empty.
func (r *Router) SelectClosestValidator(ctx context.Context, excludeTEE bool) *domain.ValidatorInfo {
	infos := r.AvailableValidators(ctx)

	var best *domain.ValidatorInfo
	for i := range infos {
		info := &infos[i]
		if !info.Available {
			continue
		}
		if excludeTEE && info.TEE {
			continue
		}
		if best == nil || info.LatencyMs < best.LatencyMs {
			best = info
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// SendTransaction submits a signed transaction to the chosen endpoint and
// waits for confirmation within the bounded polling budget. useRouter
// selects the router endpoint (required for transactions touching
// delegated accounts).
func (r *Router) SendTransaction(ctx context.Context, txBase64 string, useRouter bool) (*domain.TransactionResult, error) {
	client := r.base
	route := "base"
	if useRouter {
		client = r.router
		route = "router"
	}

	start := time.Now()
	signature, err := client.SendTransaction(ctx, txBase64)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RPCCallErrors.WithLabelValues(route, "sendTransaction").Inc()
		}
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RPCCallLatency.WithLabelValues(route, "sendTransaction").Observe(time.Since(start).Seconds())
		r.metrics.TransactionsSent.WithLabelValues(route).Inc()
	}

	result := &domain.TransactionResult{
		Signature: signature,
		Timestamp: time.Now().UnixMilli(),
	}

	tx, err := r.WaitForSignature(ctx, client, signature, DefaultPollInterval, DefaultMaxPolls)
	if err != nil || tx == nil {
		// Submitted but unconfirmed within budget: report what we know.
		return result, nil
	}

	confirmMs := uint32(time.Since(start).Milliseconds())
	result.ConfirmationTimeMs = &confirmMs
	slot := tx.Slot
	result.Slot = &slot
	if tx.Err != nil {
		errStr := fmt.Sprintf("%v", tx.Err)
		result.Error = &errStr
	}

	// Heuristic rollup classification, observability only.
	result.RoutedToEphemeralRollup = useRouter && confirmMs < ERConfirmationThresholdMs
	if r.metrics != nil {
		r.metrics.ConfirmationLatency.Observe(float64(confirmMs) / 1000)
		if result.RoutedToEphemeralRollup {
			r.metrics.RoutedToRollup.Inc()
		}
	}

	return result, nil
}

// WaitForSignature polls getTransaction until the signature is found, the
// attempt budget is exhausted, or ctx is cancelled. Cancellation stops
// further polls; it never aborts an in-flight request. Returns (nil, nil)
// when the budget runs out without a sighting.
func (r *Router) WaitForSignature(ctx context.Context, client *rpc.Client, signature string, interval time.Duration, maxAttempts int) (*rpc.Transaction, error) {
	// Base-layer waits use the push subscription when one is attached.
	// Any subscription failure drops through to polling.
	if r.ws != nil && client == r.base {
		if tx, ok := r.awaitPush(ctx, signature, interval, maxAttempts); ok {
			return tx, nil
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}

		tx, err := client.GetTransaction(ctx, signature)
		if err != nil {
			// Transient miss; keep polling within budget.
			continue
		}
		if tx != nil {
			return tx, nil
		}
	}
	return nil, nil
}

// awaitPush waits for a signatureSubscribe notification inside the same
// time budget the polling loop would spend. The second return reports
// whether the subscription produced a verdict; false means poll instead.
func (r *Router) awaitPush(ctx context.Context, signature string, interval time.Duration, maxAttempts int) (*rpc.Transaction, bool) {
	ch, err := r.ws.SubscribeSignature(ctx, signature)
	if err != nil {
		r.logger.Printf("signature subscribe %s: %v", signature, err)
		return nil, false
	}

	budget := time.Duration(maxAttempts) * interval
	select {
	case n, open := <-ch:
		if !open {
			return nil, false
		}
		tx := &rpc.Transaction{Slot: n.Slot, Signature: signature, Err: n.Err}
		// Prefer the full record when the endpoint already serves it.
		if full, err := r.base.GetTransaction(ctx, signature); err == nil && full != nil {
			tx = full
		}
		return tx, true
	case <-time.After(budget):
		// The notification may have been lost across a reconnect; one
		// direct lookup settles it without re-spending the budget.
		if full, err := r.base.GetTransaction(ctx, signature); err == nil && full != nil {
			return full, true
		}
		return nil, true
	case <-ctx.Done():
		return nil, false
	}
}

// GetBalance reads an account balance from the base layer.
// Degrades to zero on failure (read path).
func (r *Router) GetBalance(ctx context.Context, pubkey string) uint64 {
	balance, err := r.base.GetBalance(ctx, pubkey)
	if err != nil {
		r.logger.Printf("get balance %s: %v", pubkey, err)
		return 0
	}
	return balance
}

// SignaturesForAddress lists recent signatures touching an address from
// the base layer. Degrades to nil on failure (read path).
func (r *Router) SignaturesForAddress(ctx context.Context, address string, opts *rpc.SignaturesOpts) []rpc.SignatureInfo {
	sigs, err := r.base.GetSignaturesForAddress(ctx, address, opts)
	if err != nil {
		r.logger.Printf("signatures for %s: %v", address, err)
		return nil
	}
	return sigs
}

// FindTransaction looks a signature up on the base layer first, then the
// rollup namespace. Returns nil when neither endpoint knows it.
func (r *Router) FindTransaction(ctx context.Context, signature string) *rpc.Transaction {
	if tx, err := r.base.GetTransaction(ctx, signature); err == nil && tx != nil {
		return tx
	}
	if tx, err := r.router.GetTransaction(ctx, signature); err == nil && tx != nil {
		return tx
	}
	return nil
}
