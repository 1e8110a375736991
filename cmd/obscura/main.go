// Package main runs the delegation core as a service:
// - Validator probing (scheduled): latency sweeps feeding routing and telemetry
// - Delegation audit queries and status lookups over HTTP
// - Prometheus metrics and health endpoints
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"obscura-core/internal/attestation"
	"obscura-core/internal/config"
	"obscura-core/internal/delegation"
	"obscura-core/internal/domain"
	"obscura-core/internal/observability"
	"obscura-core/internal/router"
	"obscura-core/internal/rpc"
	"obscura-core/internal/storage"
	chstore "obscura-core/internal/storage/clickhouse"
	"obscura-core/internal/storage/memory"
	"obscura-core/internal/storage/migrations"
	pgstore "obscura-core/internal/storage/postgres"
)

// Server holds all components of the delegation core service.
type Server struct {
	cfg           config.Config
	probeInterval time.Duration

	router   *router.Router
	manager  *delegation.Manager
	verifier *attestation.Verifier
	events   storage.DelegationEventStore

	logger *log.Logger

	// State
	mu         sync.Mutex
	started    time.Time
	lastSweep  time.Time
	sweeps     int
	validators []domain.ValidatorInfo
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	network := flag.String("network", envOr("OBSCURA_NETWORK", "devnet"), "Target network (devnet, mainnet)")
	baseRPC := flag.String("base-rpc", os.Getenv("OBSCURA_BASE_RPC"), "Base-layer RPC endpoint override")
	routerRPC := flag.String("router-rpc", os.Getenv("OBSCURA_ROUTER_RPC"), "MagicBlock router RPC endpoint override")
	apiKey := flag.String("api-key", os.Getenv("OBSCURA_API_KEY"), "Base-layer RPC provider API key")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	wsURL := flag.String("ws-url", os.Getenv("OBSCURA_WS_URL"), "Base-layer WebSocket endpoint override")
	disableWS := flag.Bool("disable-ws", false, "Disable push subscriptions, confirmation falls back to polling")
	probeInterval := flag.Duration("probe-interval", 30*time.Second, "Validator latency sweep interval")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[obscura] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.ForNetwork(config.Network(*network))
	if err != nil {
		logger.Fatalf("Invalid network: %v", err)
	}
	if *apiKey != "" {
		cfg = cfg.WithAPIKey(*apiKey)
	}
	if *baseRPC != "" {
		cfg.BaseRPCURL = *baseRPC
	}
	if *routerRPC != "" {
		cfg.RouterRPCURL = *routerRPC
	}
	if *wsURL != "" {
		cfg.WSURL = *wsURL
	}

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	events, samples, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	baseClient := rpc.NewClient(cfg.BaseRPCURL, rpc.WithAPIKey(cfg.APIKey))
	routerClient := rpc.NewClient(cfg.RouterRPCURL)

	routerOpts := []router.Option{
		router.WithClients(baseClient, routerClient),
		router.WithLogger(log.New(os.Stdout, "[router] ", log.LstdFlags)),
		router.WithMetrics(metrics),
		router.WithLatencySampleStore(samples),
	}
	if !*disableWS && cfg.WSURL != "" {
		// A failed dial is not fatal: confirmation degrades to polling.
		wsClient, err := rpc.NewWSClient(ctx, cfg.WSURL, nil)
		if err != nil {
			logger.Printf("WebSocket connect %s failed, using polling: %v", cfg.WSURL, err)
		} else {
			defer wsClient.Close()
			routerOpts = append(routerOpts, router.WithWSClient(wsClient))
		}
	}

	r := router.New(cfg, routerOpts...)

	manager := delegation.NewManager(cfg, r,
		delegation.WithLogger(log.New(os.Stdout, "[delegation] ", log.LstdFlags)),
		delegation.WithMetrics(metrics),
		delegation.WithEventStore(events),
	)

	verifier := attestation.NewVerifier(r,
		attestation.WithLogger(log.New(os.Stdout, "[attestation] ", log.LstdFlags)),
		attestation.WithMetrics(metrics),
	)

	server := &Server{
		cfg:           cfg,
		probeInterval: *probeInterval,
		router:        r,
		manager:       manager,
		verifier:      verifier,
		events:        events,
		logger:        logger,
		started:       time.Now(),
	}

	logger.Printf("Delegation core starting on %s (base: %s, router: %s)",
		cfg.Network, cfg.BaseRPCURL, cfg.RouterRPCURL)

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*metricsAddr)

	// Run the probe loop
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores wires the audit and telemetry stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.DelegationEventStore, storage.LatencySampleStore, func(), error) {
	if useMemory {
		return memory.NewDelegationEventStore(), memory.NewLatencySampleStore(), func() {}, nil
	}

	// PostgreSQL: delegation event audit log
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse: validator latency telemetry
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return pgstore.NewDelegationEventStore(pool), chstore.NewLatencySampleStore(chConn), cleanup, nil
}

// Run sweeps validator latencies until the context is cancelled. Each
// sweep refreshes the routing gauges and appends telemetry samples.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Printf("Starting validator probe loop (interval: %v)...", s.probeInterval)

	// Sweep immediately on start
	s.sweep(ctx)

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep probes all validators once.
func (s *Server) sweep(ctx context.Context) {
	start := time.Now()
	validators := s.router.AvailableValidators(ctx)

	s.mu.Lock()
	s.validators = validators
	s.lastSweep = time.Now()
	s.sweeps++
	s.mu.Unlock()

	s.logger.Printf("Probed %d validators in %v", len(validators), time.Since(start))
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status and delegation lookups
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/validators", s.handleValidators)
	mux.HandleFunc("/delegations", s.handleDelegations)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/attestation", s.handleAttestation)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status     string    `json:"status"`
	Network    string    `json:"network"`
	Uptime     string    `json:"uptime"`
	LastSweep  time.Time `json:"last_sweep,omitempty"`
	Sweeps     int       `json:"sweeps"`
	Validators int       `json:"validators"`
}

// handleStatus returns service status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:     "running",
		Network:    string(s.cfg.Network),
		Uptime:     time.Since(s.started).String(),
		LastSweep:  s.lastSweep,
		Sweeps:     s.sweeps,
		Validators: len(s.validators),
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleValidators returns the last probed validator set.
func (s *Server) handleValidators(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	validators := make([]domain.ValidatorInfo, len(s.validators))
	copy(validators, s.validators)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(validators)
}

// handleDelegations resolves delegation status for ?accounts=a,b,c.
func (s *Server) handleDelegations(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("accounts")
	if raw == "" {
		http.Error(w, "accounts query parameter required", http.StatusBadRequest)
		return
	}

	var accounts []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			accounts = append(accounts, a)
		}
	}

	statuses := s.manager.Status(r.Context(), accounts)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}

// handleEvents returns the audit log for ?account=a.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		http.Error(w, "account query parameter required", http.StatusBadRequest)
		return
	}

	events, err := s.events.GetByAccount(r.Context(), account)
	if err != nil {
		s.logger.Printf("Audit query %s: %v", account, err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// handleAttestation checks the TEE attestation for ?signature=s.
func (s *Server) handleAttestation(w http.ResponseWriter, r *http.Request) {
	signature := r.URL.Query().Get("signature")
	if signature == "" {
		http.Error(w, "signature query parameter required", http.StatusBadRequest)
		return
	}

	attested := s.verifier.VerifyTEEAttestation(r.Context(), signature)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"attested": attested})
}

// envOr returns the environment value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
