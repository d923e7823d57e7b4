// Package main runs one plumbing trade end to end: health gate, trading
// lock, breaker check, then a single small swap through the execution
// pipeline. It is the command the round orchestrator invokes per agent,
// and the only process that loads the wallet key.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"moltapp-trading/internal/breaker"
	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/execution"
	"moltapp-trading/internal/gate"
	"moltapp-trading/internal/lock"
	"moltapp-trading/internal/metrics"
	"moltapp-trading/internal/pricefeed"
	"moltapp-trading/internal/providers"
	"moltapp-trading/internal/solana"
	"moltapp-trading/internal/storage"
	chstore "moltapp-trading/internal/storage/clickhouse"
	"moltapp-trading/internal/storage/memory"
	"moltapp-trading/internal/storage/migrations"
	pgstore "moltapp-trading/internal/storage/postgres"
	"moltapp-trading/internal/venue"
	"moltapp-trading/internal/wallet"
)

// defaultAmount is 0.1 USDC in base units: large enough to clear venue
// minimums, small enough that a plumbing failure costs pocket change.
const defaultAmount = 100_000

func main() {
	loadEnvFile()

	agentID := flag.String("agent", os.Getenv("TRADING_AGENT_ID"), "Agent identity for breaker and lock accounting")
	symbol := flag.String("symbol", "AAPLx", "Tokenized stock symbol to trade")
	side := flag.String("side", "buy", "Order side: buy or sell")
	amount := flag.Uint64("amount", defaultAmount, "Input amount in base units")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the order archive (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (paper trading only)")
	gateMode := flag.String("gate-mode", "strict", "Gate mode: strict or relaxed")
	maxDeviation := flag.Float64("max-deviation-pct", 0, "Slippage guard ceiling in percent (0 = default)")
	lockTTL := flag.Duration("lock-ttl", lock.DefaultTTL, "Trading lock lease duration")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall round deadline")

	flag.Parse()

	logger := log.New(os.Stdout, "[trade] ", log.LstdFlags|log.Lshortfile)

	if *agentID == "" {
		logger.Fatal("--agent (or TRADING_AGENT_ID) is required")
	}
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for paper trading)")
	}
	orderSide := domain.Side(*side)
	if orderSide != domain.SideBuy && orderSide != domain.SideSell {
		logger.Fatalf("invalid --side %q", *side)
	}
	mode := domain.GateMode(*gateMode)
	if mode != domain.GateModeStrict && mode != domain.GateModeRelaxed {
		logger.Fatalf("invalid --gate-mode %q", *gateMode)
	}

	privateKey := os.Getenv("WALLET_PRIVATE_KEY")
	if privateKey == "" {
		logger.Fatal("WALLET_PRIVATE_KEY is required")
	}
	w, err := wallet.Load(privateKey)
	if err != nil {
		logger.Fatalf("Failed to load wallet: %v", err)
	}
	logger.Printf("Wallet: %s", w.Pubkey())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	breakerStore, lockStore, orderStore, dbPinger, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	var archive storage.OrderArchive
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to prepare clickhouse: %v", err)
		}
		defer conn.Close()
		archive = chstore.NewOrderArchiveStore(conn)
	}

	registry := metrics.NewRegistry(0)

	b := breaker.New(breaker.Options{
		Store:    breakerStore,
		Registry: registry,
		Logger:   log.New(os.Stdout, "[breaker] ", log.LstdFlags),
	})
	lease := lock.New(lock.Options{
		Store:    lockStore,
		Registry: registry,
		Logger:   log.New(os.Stdout, "[lock] ", log.LstdFlags),
	})

	apiKey := os.Getenv("JUPITER_API_KEY")
	cache := pricefeed.NewCache(pricefeed.DefaultMaxAge)
	feed := pricefeed.NewCachedFeed(cache, pricefeed.NewHTTPFeed(apiKey))

	rpcClient := solana.NewHTTPClient(*rpcEndpoint)

	gateRunner := gate.New(gate.Options{
		DB:        dbPinger,
		Feed:      feed,
		RPC:       rpcClient,
		Providers: providers.NewChecker(nil, nil),
		Lease:     lease,
		Breaker:   b,
		Agents:    []string{*agentID},
		Registry:  registry,
		Logger:    log.New(os.Stdout, "[gate] ", log.LstdFlags),
	})

	// 1. Health gate.
	result := gateRunner.Run(ctx, mode)
	for _, check := range result.Checks {
		logger.Printf("  check %-18s %s %s", check.Name, check.Status, check.Message)
	}
	if !result.Proceed {
		logger.Fatalf("Gate blocked: %s", result.BlockReason)
	}

	// 2. Trading lock. One agent trades at a time; losing the race is a
	// normal outcome, not an error.
	acquired, err := lease.TryAcquire(ctx, *agentID, *lockTTL)
	if err != nil {
		logger.Fatalf("Lock acquire failed: %v", err)
	}
	if !acquired {
		logger.Println("Trading lock is held by another agent, skipping this round")
		return
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer releaseCancel()
		if err := lease.Release(releaseCtx, *agentID); err != nil {
			logger.Printf("Lock release failed: %v", err)
		}
	}()

	// 3. Circuit breaker.
	tripped, err := b.IsTriggered(ctx, *agentID)
	if err != nil {
		logger.Fatalf("Breaker check failed: %v", err)
	}
	if tripped {
		registry.IncBreakerDenial()
		logger.Fatalf("Circuit breaker tripped for %s, no trading until tomorrow (UTC)", *agentID)
	}

	// 4. Execute.
	executor := execution.New(execution.Options{
		Venue:           venue.NewHTTPClient(apiKey),
		Feed:            feed,
		Signer:          w,
		Registry:        registry,
		Orders:          orderStore,
		Archive:         archive,
		Logger:          log.New(os.Stdout, "[executor] ", log.LstdFlags),
		MaxDeviationPct: *maxDeviation,
	})

	order, err := executor.Execute(ctx, execution.Request{
		AgentID: *agentID,
		Side:    orderSide,
		Symbol:  *symbol,
		Amount:  *amount,
		Taker:   w.Pubkey(),
	})
	if err != nil {
		logger.Fatalf("Execute failed: %v", err)
	}

	logger.Printf("Order %s: %s after %d attempt(s)", order.OrderID, order.FinalStatus, len(order.Attempts))
	switch order.FinalStatus {
	case domain.OrderStatusConfirmed:
		confirmOnChain(ctx, rpcClient, order.Signature, logger)
		fmt.Printf("confirmed: https://solscan.io/tx/%s\n", order.Signature)
	default:
		fmt.Printf("%s: kind=%s code=%s\n", order.FinalStatus, order.FailureKind, order.FailureCode)
		if attempt := order.LastAttempt(); attempt != nil && attempt.ErrorMessage != "" {
			fmt.Printf("last error: %s\n", attempt.ErrorMessage)
		}
		os.Exit(1)
	}
}

// confirmOnChain cross-checks a venue-confirmed signature against the
// chain. RPC propagation can lag the venue, so absence is logged, not
// treated as failure.
func confirmOnChain(ctx context.Context, rpc solana.RPCClient, signature string, logger *log.Logger) {
	tx, err := rpc.GetTransaction(ctx, signature)
	if err != nil {
		logger.Printf("On-chain lookup failed for %s: %v", signature, err)
		return
	}
	if tx == nil {
		logger.Printf("Transaction %s not visible on-chain yet", signature)
		return
	}
	if !tx.Succeeded() {
		logger.Printf("WARNING: transaction %s landed but failed on-chain: %v", signature, tx.Meta.Err)
		return
	}
	logger.Printf("On-chain confirmed at slot %d", tx.Slot)
}

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
