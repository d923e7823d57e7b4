// Package main runs the trading-core service: it owns the metrics
// registry, the circuit breakers, the trading lock and the health gate,
// and exposes them over HTTP to the round orchestrator and metrics
// scrapers. Order execution itself happens in the round process (see
// cmd/trade); this service never holds wallet keys.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moltapp-trading/internal/breaker"
	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/gate"
	"moltapp-trading/internal/lock"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/observability"
	"moltapp-trading/internal/pricefeed"
	"moltapp-trading/internal/providers"
	"moltapp-trading/internal/solana"
	"moltapp-trading/internal/storage"
	chstore "moltapp-trading/internal/storage/clickhouse"
	"moltapp-trading/internal/storage/memory"
	"moltapp-trading/internal/storage/migrations"
	pgstore "moltapp-trading/internal/storage/postgres"
)

// Server wires the trading-core components behind HTTP handlers.
type Server struct {
	registry *metrics.Registry
	exporter *observability.Exporter
	breaker  *breaker.Breaker
	lease    *lock.Lease
	gate     *gate.Runner
	orders   storage.OrderStore
	archive  *chstore.OrderArchiveStore
	logger   *log.Logger

	defaultMode domain.GateMode
	started     time.Time
}

func main() {
	loadEnvFile()

	listenAddr := flag.String("listen-addr", ":8080", "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("PRICE_WS_ENDPOINT"), "Price feed WebSocket endpoint (optional)")
	feedURL := flag.String("price-feed-url", os.Getenv("PRICE_FEED_URL"), "Price API base URL override")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the order archive (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL (paper trading only)")
	gateMode := flag.String("gate-mode", "strict", "Default gate mode: strict or relaxed")
	agents := flag.String("agents", os.Getenv("TRADING_AGENTS"), "Comma-separated agent IDs")
	dailyLossLimit := flag.Float64("daily-loss-limit", breaker.DefaultDailyLimitUSD, "Per-agent daily loss limit in USD")
	snapshotInterval := flag.Duration("snapshot-interval", time.Minute, "Metrics snapshot interval")
	checkTimeout := flag.Duration("gate-check-timeout", gate.DefaultCheckTimeout, "Per-check gate timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for paper trading)")
	}
	mode := domain.GateMode(*gateMode)
	if mode != domain.GateModeStrict && mode != domain.GateModeRelaxed {
		logger.Fatalf("invalid --gate-mode %q", *gateMode)
	}
	agentList := splitList(*agents)
	if len(agentList) == 0 {
		logger.Fatal("--agents (or TRADING_AGENTS) is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	breakerStore, lockStore, orderStore, dbPinger, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	var archive *chstore.OrderArchiveStore
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to prepare clickhouse: %v", err)
		}
		defer conn.Close()
		archive = chstore.NewOrderArchiveStore(conn)
		logger.Println("Order archive enabled")
	}

	registry := metrics.NewRegistry(0)

	b := breaker.New(breaker.Options{
		Store:         breakerStore,
		Registry:      registry,
		Logger:        log.New(os.Stdout, "[breaker] ", log.LstdFlags),
		DailyLimitUSD: *dailyLossLimit,
	})
	lease := lock.New(lock.Options{
		Store:    lockStore,
		Registry: registry,
		Logger:   log.New(os.Stdout, "[lock] ", log.LstdFlags),
	})

	// Reference prices: HTTP feed behind a freshness cache, optionally kept
	// warm by a WebSocket stream.
	apiKey := os.Getenv("JUPITER_API_KEY")
	var feedOpts []pricefeed.FeedOption
	if *feedURL != "" {
		feedOpts = append(feedOpts, pricefeed.WithBaseURL(*feedURL))
	}
	cache := pricefeed.NewCache(pricefeed.DefaultMaxAge)
	feed := pricefeed.NewCachedFeed(cache, pricefeed.NewHTTPFeed(apiKey, feedOpts...))

	if *wsEndpoint != "" {
		mints := make([]string, 0, len(domain.Stocks)+1)
		mints = append(mints, domain.USDCMint)
		for _, s := range domain.Stocks {
			mints = append(mints, s.Mint)
		}
		updater, err := pricefeed.NewWSUpdater(ctx, *wsEndpoint, mints, cache, nil,
			log.New(os.Stdout, "[pricefeed-ws] ", log.LstdFlags))
		if err != nil {
			logger.Printf("WebSocket price updates unavailable, using HTTP only: %v", err)
		} else {
			defer updater.Close()
			logger.Println("WebSocket price updates enabled")
		}
	}

	gateRunner := gate.New(gate.Options{
		DB:           dbPinger,
		Feed:         feed,
		RPC:          solana.NewHTTPClient(*rpcEndpoint),
		Providers:    providers.NewChecker(nil, nil),
		Lease:        lease,
		Breaker:      b,
		Agents:       agentList,
		Registry:     registry,
		Logger:       log.New(os.Stdout, "[gate] ", log.LstdFlags),
		CheckTimeout: *checkTimeout,
	})

	server := &Server{
		registry:    registry,
		exporter:    observability.NewExporter(registry, b, lease),
		breaker:     b,
		lease:       lease,
		gate:        gateRunner,
		orders:      orderStore,
		archive:     archive,
		logger:      logger,
		defaultMode: mode,
		started:     time.Now().UTC(),
	}

	// Periodic snapshots feed the trend endpoint.
	go func() {
		ticker := time.NewTicker(*snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				server.exporter.TakeSnapshot()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{Addr: *listenAddr, Handler: server.routes()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

		// Second signal forces immediate exit.
		<-sigCh
		logger.Println("Forced exit")
		os.Exit(1)
	}()

	logger.Printf("Listening on %s (mode=%s agents=%v)", *listenAddr, mode, agentList)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores builds the breaker, lock and order stores. In-memory
// storage resets loss limits and the lock on restart, so it only makes
// sense for paper trading.
func createStores(ctx context.Context, postgresDSN string, useMemory bool) (
	storage.BreakerStateStore, storage.LockStore, storage.OrderStore, storage.Pinger, func(), error,
) {
	if useMemory {
		bs := memory.NewBreakerStateStore()
		return bs, memory.NewLockStore(), memory.NewOrderStore(), bs, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return pgstore.NewBreakerStateStore(pool),
		pgstore.NewLockStore(pool),
		pgstore.NewOrderStore(pool),
		pool,
		pool.Close,
		nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics/cloudwatch", s.handleCloudWatch)
	mux.HandleFunc("/metrics/snapshots", s.handleSnapshots)

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/gate/run", s.handleGateRun)
	mux.HandleFunc("/gate/recent", s.handleGateRecent)
	mux.HandleFunc("/breaker", s.handleBreakerStatus)
	mux.HandleFunc("/breaker/loss", s.handleBreakerLoss)
	mux.HandleFunc("/lock", s.handleLockStatus)
	mux.HandleFunc("/lock/acquire", s.handleLockAcquire)
	mux.HandleFunc("/lock/release", s.handleLockRelease)
	mux.HandleFunc("/orders/recent", s.handleOrdersRecent)
	if s.archive != nil {
		mux.HandleFunc("/orders/stats", s.handleOrderStats)
	}

	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.exporter.CollectAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status":  "running",
		"uptime":  time.Since(s.started).String(),
		"metrics": snap,
	})
}

func (s *Server) handleCloudWatch(w http.ResponseWriter, r *http.Request) {
	data, err := s.exporter.CloudWatchList(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, data)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	writeJSON(w, s.exporter.RecentSnapshots(n))
}

func (s *Server) handleGateRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	mode := s.defaultMode
	if q := r.URL.Query().Get("mode"); q != "" {
		m := domain.GateMode(q)
		if m != domain.GateModeStrict && m != domain.GateModeRelaxed {
			http.Error(w, fmt.Sprintf("invalid mode %q", q), http.StatusBadRequest)
			return
		}
		mode = m
	}

	writeJSON(w, s.gate.Run(r.Context(), mode))
}

func (s *Server) handleGateRecent(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	writeJSON(w, s.gate.Recent(n))
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.breaker.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"daily_limit_usd": s.breaker.DailyLimitUSD(),
		"agents":          status,
	})
}

func (s *Server) handleBreakerLoss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AgentID string  `json:"agent_id"`
		LossUSD float64 `json:"loss_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	state, err := s.breaker.RecordLoss(r.Context(), req.AgentID, req.LossUSD)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, state)
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lease.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"held": rec != nil, "record": rec})
}

func (s *Server) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Holder     string `json:"holder"`
		TTLSeconds int    `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Holder == "" {
		http.Error(w, "holder is required", http.StatusBadRequest)
		return
	}

	acquired, err := s.lease.TryAcquire(r.Context(), req.Holder, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"acquired": acquired})
}

func (s *Server) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Holder string `json:"holder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.lease.Release(r.Context(), req.Holder); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"released": true})
}

func (s *Server) handleOrdersRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := s.orders.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, orders)
}

func (s *Server) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.archive.CountByAgent(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"archived_orders_by_agent": counts})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
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
