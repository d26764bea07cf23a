// Package main runs the confidential rebalancing service:
// - Feed listener (continuous): WebSocket swap/block feed driving hooks
// - Engine: encrypted strategy state, delta computation, execution gates
// - HTTP: health, Prometheus metrics, status
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"confidential-rebalancer/internal/engine"
	"confidential-rebalancer/internal/feed"
	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/fhe/mock"
	"confidential-rebalancer/internal/logger"
	"confidential-rebalancer/internal/observability"
	"confidential-rebalancer/internal/storage"
	chstore "confidential-rebalancer/internal/storage/clickhouse"
	"confidential-rebalancer/internal/storage/memory"
	"confidential-rebalancer/internal/storage/migrations"
	pgstore "confidential-rebalancer/internal/storage/postgres"

	"github.com/rs/zerolog"
)

// Server holds all components of the service.
type Server struct {
	wsEndpoint string
	useMemory  bool

	engine   *engine.Engine
	listener *feed.Listener

	mu        sync.Mutex
	startedAt time.Time

	log zerolog.Logger
}

// allStores bundles every store the engine needs.
type allStores struct {
	strategyStore       storage.StrategyStore
	allocationStore     storage.AllocationStore
	positionStore       storage.PositionStore
	tradeDeltaStore     storage.TradeDeltaStore
	coordinationStore   storage.CoordinationStore
	governanceStore     storage.GovernanceStore
	complianceStore     storage.ComplianceStore
	executionEventStore storage.ExecutionEventStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("FEED_WS_ENDPOINT"), "Swap feed WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for execution events (optional)")
	governance := flag.String("governance", os.Getenv("GOVERNANCE_PRINCIPAL"), "Governance principal identifier")
	executors := flag.String("executors", os.Getenv("AUTHORIZED_EXECUTORS"), "Comma-separated authorized executor principals")
	cooldown := flag.Uint64("execution-cooldown", envUint64("EXECUTION_COOLDOWN", 0), "Minimum block gap between executions by the same caller")
	voteThreshold := flag.Int("vote-threshold", 0, "Governance vote threshold (0 = default)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	logger.Initialize(*logLevel)
	log := logger.GetForComponent("main")

	// Validate required flags
	if *wsEndpoint == "" {
		log.Fatal().Msg("--ws-endpoint is required")
	}
	if *governance == "" {
		log.Fatal().Msg("--governance is required")
	}
	if !*useMemory && *postgresDSN == "" {
		log.Fatal().Msg("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	executorList := resolveExecutors(*executors, *governance)
	log.Info().Strs("executors", principalsToStrings(executorList)).Msg("Authorized executors")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stores")
	}
	defer cleanup()

	metrics := observability.NewMetrics("")
	cop := observability.InstrumentCoprocessor(mock.New(), metrics)

	// The listener is the engine's block clock and the engine is the
	// listener's hook target, so the hooks go through a relay that is
	// bound once the engine exists. Messages arriving before the bind
	// only advance the block height.
	relay := &hookRelay{}

	listener, err := feed.New(ctx, *wsEndpoint, relay, metrics, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect swap feed")
	}
	defer listener.Close()

	eng, err := engine.New(engine.Options{
		StrategyStore:       stores.strategyStore,
		AllocationStore:     stores.allocationStore,
		PositionStore:       stores.positionStore,
		TradeDeltaStore:     stores.tradeDeltaStore,
		CoordinationStore:   stores.coordinationStore,
		GovernanceStore:     stores.governanceStore,
		ComplianceStore:     stores.complianceStore,
		ExecutionEventStore: stores.executionEventStore,
		Coprocessor:         cop,
		Clock:               listener,
		Governance:          fhe.Principal(*governance),
		AuthorizedExecutors: executorList,
		ExecutionCooldown:   *cooldown,
		VoteThreshold:       *voteThreshold,
		Metrics:             metrics,
		Logger:              logger.GetForComponent("engine"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}
	relay.Bind(eng)

	server := &Server{
		wsEndpoint: *wsEndpoint,
		useMemory:  *useMemory,
		engine:     eng,
		listener:   listener,
		startedAt:  time.Now(),
		log:        log,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Stringer("signal", sig).Msg("Received signal, initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn().Stringer("signal", sig).Msg("Received second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn().Msg("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*metricsAddr)

	log.Info().Str("ws_endpoint", *wsEndpoint).Bool("use_memory", *useMemory).Msg("Rebalancer started")

	<-ctx.Done()
	if err := listener.Close(); err != nil {
		log.Warn().Err(err).Msg("Feed listener close")
	}
	close(done)

	log.Info().Msg("Shutdown complete")
}

// hookRelay forwards feed hooks to the engine once it is bound.
type hookRelay struct {
	mu     sync.RWMutex
	engine *engine.Engine
}

func (r *hookRelay) Bind(e *engine.Engine) {
	r.mu.Lock()
	r.engine = e
	r.mu.Unlock()
}

func (r *hookRelay) OnPreSwap(ctx context.Context, poolID, asset0, asset1 string) error {
	r.mu.RLock()
	e := r.engine
	r.mu.RUnlock()
	if e == nil {
		return nil
	}
	return e.OnPreSwap(ctx, poolID, asset0, asset1)
}

func (r *hookRelay) OnPostSwap(ctx context.Context, poolID, asset0, asset1 string, realizedDelta0, realizedDelta1 fhe.Handle) error {
	r.mu.RLock()
	e := r.engine
	r.mu.RUnlock()
	if e == nil {
		return nil
	}
	return e.OnPostSwap(ctx, poolID, asset0, asset1, realizedDelta0, realizedDelta1)
}

// resolveExecutors parses the executor list, always including governance.
func resolveExecutors(executors, governance string) []fhe.Principal {
	seen := map[string]bool{governance: true}
	list := []fhe.Principal{fhe.Principal(governance)}

	for _, p := range strings.Split(executors, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		list = append(list, fhe.Principal(p))
	}
	return list
}

func principalsToStrings(principals []fhe.Principal) []string {
	out := make([]string, len(principals))
	for i, p := range principals {
		out[i] = string(p)
	}
	return out
}

// createStores creates all required stores and runs migrations.
// ClickHouse is optional: without a DSN, execution events stay in memory.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			strategyStore:       memory.NewStrategyStore(),
			allocationStore:     memory.NewAllocationStore(),
			positionStore:       memory.NewPositionStore(),
			tradeDeltaStore:     memory.NewTradeDeltaStore(),
			coordinationStore:   memory.NewCoordinationStore(),
			governanceStore:     memory.NewGovernanceStore(),
			complianceStore:     memory.NewComplianceStore(),
			executionEventStore: memory.NewExecutionEventStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		strategyStore:     pgstore.NewStrategyStore(pool),
		allocationStore:   pgstore.NewAllocationStore(pool),
		positionStore:     pgstore.NewPositionStore(pool),
		tradeDeltaStore:   pgstore.NewTradeDeltaStore(pool),
		coordinationStore: pgstore.NewCoordinationStore(pool),
		governanceStore:   pgstore.NewGovernanceStore(pool),
		complianceStore:   pgstore.NewComplianceStore(pool),
	}

	// ClickHouse (execution events)
	var chConn *chstore.Conn
	if clickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.executionEventStore = chstore.NewExecutionEventStore(chConn)
	} else {
		stores.executionEventStore = memory.NewExecutionEventStore()
	}

	cleanup := func() {
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}

	return stores, cleanup, nil
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

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.log.Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("HTTP server error")
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	FeedEndpoint string `json:"feed_endpoint"`
	CurrentBlock uint64 `json:"current_block"`
	UseMemory    bool   `json:"use_memory"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.startedAt).String(),
		FeedEndpoint: s.wsEndpoint,
		CurrentBlock: s.listener.CurrentBlock(),
		UseMemory:    s.useMemory,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// envUint64 reads an unsigned integer environment variable with a fallback.
func envUint64(key string, fallback uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
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
