package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	mcpadapter "github.com/sqlalign/sqlalign/internal/adapter/mcp"
	"github.com/sqlalign/sqlalign/internal/adapter/postgres"
	"github.com/sqlalign/sqlalign/internal/audit"
	"github.com/sqlalign/sqlalign/internal/checker"
	"github.com/sqlalign/sqlalign/internal/config"
	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/sqlalign/sqlalign/internal/core/port"
	"github.com/sqlalign/sqlalign/internal/core/service"
	"github.com/sqlalign/sqlalign/internal/manifest"
	"github.com/sqlalign/sqlalign/internal/telemetry"
	"go.opentelemetry.io/otel"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags builds config overrides from CLI arguments.
func parseFlags(args []string) (config.Overrides, error) {
	var o config.Overrides

	fs := flag.NewFlagSet("sqlalign", flag.ContinueOnError)
	databaseURL := fs.String("database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	databaseUser := fs.String("database-user", "", "database user (overrides DATABASE_USER)")
	databasePass := fs.String("database-password", "", "database password (overrides DATABASE_PASSWORD)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	analyzeTimeout := fs.Duration("analyze-timeout", 0, "per-check analysis timeout")
	manifestFile := fs.String("manifest", "", "path to checks YAML manifest")
	transport := fs.String("transport", "", `transport: "cli" or "mcp"`)
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", -1, "minimum pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum pool connection lifetime")
	fs.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	fs.StringVar(&o.AuditLog, "audit-log", "", "path to NDJSON audit log file")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if *databaseURL != "" {
		o.DatabaseURL = databaseURL
	}
	if *databaseUser != "" {
		o.DatabaseUser = databaseUser
	}
	if *databasePass != "" {
		o.DatabasePass = databasePass
	}
	if *logLevel != "" {
		o.LogLevel = logLevel
	}
	if *analyzeTimeout != 0 {
		o.AnalyzeTimeout = analyzeTimeout
	}
	if *manifestFile != "" {
		o.ManifestFile = manifestFile
	}
	if *transport != "" {
		o.Transport = transport
	}
	if *poolMaxConns != 0 {
		v := int32(*poolMaxConns)
		o.PoolMaxConns = &v
	}
	if *poolMinConns >= 0 {
		v := int32(*poolMinConns)
		o.PoolMinConns = &v
	}
	if *poolMaxConnLifetime != 0 {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}

	return o, nil
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr — stdout is reserved for check output and the MCP
	// stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting sqlalign",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("transport", cfg.Transport),
		slog.String("analyze_timeout", cfg.AnalyzeTimeout.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Observability (optional).
	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = port.NoopInstrumentation{}
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "sqlalign", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
		tracer = otel.Tracer("sqlalign")
		inst = telemetry.NewInstruments()
	}

	// Audit log (optional).
	var auditor port.Auditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fa.Close() }()
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Pooled transactor. Credentials from config override the URL's.
	transactor, err := postgres.TransactorFromCredentials("pgx", cfg.DatabaseURL, cfg.DatabaseUser, cfg.DatabasePass)
	if err != nil {
		return fmt.Errorf("building transactor: %w", err)
	}
	defer transactor.Close()
	transactor.SetPoolSettings(postgres.PoolSettings{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})

	analyzer := postgres.NewAnalyzer(transactor)
	validator := domain.NewStatementValidator()
	checks := service.NewCheckService(validator, analyzer, auditor, logger, tracer, inst)

	if cfg.Transport == "mcp" {
		mcpServer := mcpadapter.NewServer(version, checks, logger, tracer, inst)
		stdioServer := server.NewStdioServer(mcpServer)

		logger.Info("serving MCP over stdio")
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("stdio server: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	}

	return runSuite(ctx, cfg, checks, logger)
}

// runSuite loads the manifest, evaluates every check, and renders the
// assertion blocks to stdout. It fails when any check fails; individual
// failures never stop the remaining checks.
func runSuite(ctx context.Context, cfg *config.Config, checks *service.CheckService, logger *slog.Logger) error {
	suite, err := manifest.LoadFromFile(cfg.ManifestFile)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	logger.Info("manifest loaded",
		slog.String("file", suite.Path),
		slog.Int("checks", len(suite.Checks)),
	)

	chk := checker.New(checks)
	blocks := make([]*checker.Block, 0, len(suite.Checks))
	for _, c := range suite.Checks {
		blocks = append(blocks, chk.Check(c.Operation(suite.Path)))
	}

	ctx = service.WithSource(ctx, "cli")

	failed := 0
	for _, block := range blocks {
		evalCtx, cancel := context.WithTimeout(ctx, cfg.AnalyzeTimeout)
		block.Render(evalCtx, os.Stdout)
		fmt.Println()
		cancel()

		if block.Failed(ctx) {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(blocks))
	}
	logger.Info("all checks passed", slog.Int("checks", len(blocks)))
	return nil
}
