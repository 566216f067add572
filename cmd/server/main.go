// Package main runs the presale service:
// - Ledger: in-memory or PostgreSQL, migrated on start
// - API: HTTP operations, WebSocket event stream, health and metrics
// - Export (continuous): committed ledger events copied to ClickHouse and/or a bbolt archive
// - Audit: event log replayed against stored accounts, on start and on demand
package main

import (
	"context"
	"errors"
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

	"solana-presale/internal/api"
	"solana-presale/internal/export"
	"solana-presale/internal/observability"
	"solana-presale/internal/presale"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
	boltstore "solana-presale/internal/storage/bolt"
	chstore "solana-presale/internal/storage/clickhouse"
	"solana-presale/internal/storage/memory"
	"solana-presale/internal/storage/migrations"
	pgstore "solana-presale/internal/storage/postgres"
	"solana-presale/internal/verification"
)

// stores holds the storage implementations the service runs on.
type stores struct {
	ledger   storage.Ledger
	progress storage.ExportProgressStore
	events   storage.EventStore // nil disables export
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", envOr("PRESALE_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint for cluster clock and rent (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables event export)")
	programID := flag.String("program-id", envOr("PRESALE_PROGRAM_ID", presale.DefaultProgramID), "Presale program ID used for address derivation")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	faucet := flag.Bool("faucet", envBool("PRESALE_FAUCET"), "Enable airdrop, mint and fund endpoints (dev and test only)")
	exportInterval := flag.Duration("export-interval", 5*time.Second, "Event export poll interval")
	archivePath := flag.String("archive-path", os.Getenv("PRESALE_ARCHIVE_PATH"), "bbolt file that receives a copy of every committed event (optional)")
	jwtSecret := flag.String("jwt-secret", os.Getenv("PRESALE_JWT_SECRET"), "HS256 secret; when set, callers must present bearer tokens")
	auditOnStart := flag.Bool("audit-on-start", envBool("PRESALE_AUDIT_ON_START"), "Audit every sale before serving and refuse to start on divergence")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	program, err := solana.ParsePublicKey(*programID)
	if err != nil {
		logger.Fatalf("Invalid --program-id: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Cluster time and rent, or local defaults
	var (
		clock presale.Clock      = presale.SystemClock{}
		rent  presale.RentSource = presale.StaticRent{}
	)
	if *rpcEndpoint != "" {
		rpc := solana.NewHTTPClient(*rpcEndpoint, solana.WithObserver(func(method string, d time.Duration) {
			observability.RecordRPCLatency(method, d.Seconds())
		}))
		clock = solana.NewClusterClock(rpc)
		rent = solana.NewRPCRent(rpc)
		logger.Printf("Using cluster clock and rent from %s", *rpcEndpoint)
	}

	hub := api.NewHub(log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lshortfile))
	publishers := []presale.Publisher{hub}

	var exporters []*export.Exporter
	if st.events != nil {
		exporters = append(exporters, export.New(export.Options{
			Ledger:       st.ledger,
			Sink:         st.events,
			Progress:     st.progress,
			PollInterval: *exportInterval,
			Logger:       log.New(os.Stdout, "[export] ", log.LstdFlags|log.Lshortfile),
		}))
	}
	if *archivePath != "" {
		archive, err := boltstore.Open(*archivePath)
		if err != nil {
			logger.Fatalf("Failed to open event archive: %v", err)
		}
		defer archive.Close()

		// The archive keeps its own cursor so it stays consistent with its contents.
		exporters = append(exporters, export.New(export.Options{
			Ledger:       st.ledger,
			Sink:         archive,
			Progress:     archive,
			SinkName:     "archive",
			PollInterval: *exportInterval,
			Logger:       log.New(os.Stdout, "[archive] ", log.LstdFlags|log.Lshortfile),
		}))
		logger.Printf("Archiving events to %s", *archivePath)
	}
	for _, x := range exporters {
		publishers = append(publishers, x)
	}

	presaleProgram := presale.NewProgram(presale.Options{
		Ledger:     st.ledger,
		Clock:      clock,
		Rent:       rent,
		ProgramID:  program,
		Publishers: publishers,
		Logger:     log.New(os.Stdout, "[presale] ", log.LstdFlags),
	})

	verifier := verification.NewLedgerVerifier(st.ledger, program)
	if *auditOnStart {
		if err := auditLedger(ctx, verifier, logger); err != nil {
			logger.Fatalf("Startup audit failed: %v", err)
		}
	}

	apiServer := api.NewServer(api.Options{
		Program:      presaleProgram,
		Hub:          hub,
		Verifier:     verifier,
		TokenSecret:  []byte(*jwtSecret),
		EnableFaucet: *faucet,
		Logger:       log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
	})
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-done:
		}
	}()

	for _, x := range exporters {
		go func() {
			if err := x.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Exporter error: %v", err)
			}
		}()
	}
	if len(exporters) == 0 {
		logger.Println("Event export disabled (no --clickhouse-dsn or --archive-path)")
	}

	logger.Printf("Presale program %s, faucet enabled: %v", program, *faucet)
	logger.Printf("Starting HTTP server on %s", *addr)
	err = httpServer.ListenAndServe()
	close(done)

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// auditLedger verifies every sale and fails if any diverges from its event log.
func auditLedger(ctx context.Context, verifier verification.Verifier, logger *log.Logger) error {
	report, err := verifier.VerifyAll(ctx)
	if err != nil {
		return err
	}
	for _, result := range report.Results {
		for _, d := range result.Divergences {
			logger.Printf("Sale %q: %s", result.SaleID, d)
		}
	}
	logger.Printf("Audited %d sales: %d matched, %d divergent",
		report.TotalSales, report.MatchedSales, report.DivergentSales)
	if report.DivergentSales > 0 {
		return fmt.Errorf("%d sales diverge from their event log", report.DivergentSales)
	}
	return nil
}

// createStores creates the ledger and export stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*stores, func(), error) {
	if useMemory {
		st := &stores{
			ledger:   memory.NewLedger(),
			progress: memory.NewExportProgressStore(),
		}
		return st, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool.Pool, logger); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	st := &stores{
		ledger:   pgstore.NewLedger(pool),
		progress: pgstore.NewExportProgressStore(pool),
	}
	if clickhouseDSN == "" {
		return st, pool.Close, nil
	}

	// ClickHouse (analytics)
	if err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN, logger); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	st.events = chstore.NewEventStore(chConn)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return st, cleanup, nil
}

// envOr returns the environment variable key, or def if unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envBool parses the environment variable key as a bool, false if unset or invalid.
func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
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
