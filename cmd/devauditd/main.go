// Devauditd is the deviation analysis daemon.
//
// It loads the two taxonomies and their embedding matrices, then serves the
// analysis API over HTTP: deviation records, report builds, section editing
// and export.
//
// Configuration is read from ~/.config/devaudit/config.yaml and DEVAUDIT_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with the default config file
//	devauditd
//
//	# Start with an explicit config file
//	devauditd -config /etc/devaudit/config.yaml
//
//	# Configure via environment
//	DEVAUDIT_SERVER_PORT=9090 DEVAUDIT_AUTH_PASSWORD=... devauditd
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
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devaudit/internal/analysis"
	"github.com/fyrsmithlabs/devaudit/internal/catalog"
	"github.com/fyrsmithlabs/devaudit/internal/config"
	"github.com/fyrsmithlabs/devaudit/internal/embeddings"
	"github.com/fyrsmithlabs/devaudit/internal/generation"
	httpapi "github.com/fyrsmithlabs/devaudit/internal/http"
	"github.com/fyrsmithlabs/devaudit/internal/llm"
	"github.com/fyrsmithlabs/devaudit/internal/logging"
	"github.com/fyrsmithlabs/devaudit/internal/prompt"
	"github.com/fyrsmithlabs/devaudit/internal/retrieval"
	"github.com/fyrsmithlabs/devaudit/internal/secrets"
	"github.com/fyrsmithlabs/devaudit/internal/store"
	"github.com/fyrsmithlabs/devaudit/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/devaudit/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  devauditd [-config path]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  devauditd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("devauditd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Opens the record store
//  4. Loads the catalog, embedding missing matrices
//  5. Wires the generator, the analysis service and the HTTP server
//  6. Shuts down gracefully on cancellation
func run(ctx context.Context, configPath string) error {
	src, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg, err := src.Config()
	if err != nil {
		return err
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceVersion = version
	if err := src.Section("telemetry", telCfg); err != nil {
		return err
	}
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telCfg.ShutdownTimeout.Duration())
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg := logging.NewDefaultConfig()
	logCfg.OTEL = tel.LoggerProvider() != nil
	if err := src.Section("logging", logCfg); err != nil {
		return err
	}
	logger, err := logging.New(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("Starting devauditd",
		zap.String("version", version),
		zap.String("config", src.Path()),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("telemetry", tel.Enabled()))
	if h := tel.Health(); !h.Healthy {
		logger.Warn("telemetry degraded", zap.Strings("failures", h.Failures))
	}

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svc, err := analysis.New(analysis.Deps{
		Records:   deps.store,
		Grants:    deps.store,
		Retriever: retrieval.New(deps.catalog, deps.embedder, retrieval.WithDefaultK(cfg.Index.K), retrieval.WithLogger(logger.Named("retrieval")), retrieval.WithMetrics(retrieval.NewMetrics(logger))),
		Runner:    deps.runner,
		Catalog:   deps.catalog,
		Redactor:  deps.redactor,
		Logger:    logger.Named("analysis"),
		Metrics:   analysis.NewMetrics(logger),
	}, analysis.Options{
		Password:     cfg.Auth.Password.Value(),
		AuthDisabled: cfg.Auth.Disabled,
		K:            cfg.Index.K,
		Build:        prompt.Params(cfg.Generator.Build),
		Regenerate:   prompt.Params(cfg.Generator.Regenerate),
		JobRetention: cfg.Server.JobRetention,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize analysis service: %w", err)
	}
	defer svc.Close()

	srv, err := httpapi.NewServer(svc, logger.Named("http"), &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Int("active_builds", svc.ActiveJobs()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// dependencies holds the infrastructure the analysis service runs on.
type dependencies struct {
	store    *store.SQLite
	embedder embeddings.Provider
	catalog  *catalog.Catalog
	runner   *generation.Runner
	redactor *secrets.Redactor
	logger   *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("closing embedder", zap.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing store", zap.Error(err))
		}
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (deps *dependencies, err error) {
	deps = &dependencies{logger: logger}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	loc, err := cfg.Store.Location()
	if err != nil {
		return nil, err
	}
	deps.store, err = store.OpenSQLite(cfg.Store.Path,
		store.WithLocation(loc),
		store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Info("Store opened", zap.String("path", cfg.Store.Path), zap.String("timezone", cfg.Store.Timezone))

	deps.embedder, err = newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.catalog, err = openCatalog(ctx, cfg, deps.embedder, logger)
	if err != nil {
		return nil, err
	}

	gen, err := llm.New(llm.Config{
		Provider:  cfg.Generator.Provider,
		Model:     cfg.Generator.Model,
		BaseURL:   cfg.Generator.BaseURL,
		APIKey:    cfg.Generator.APIKey.Value(),
		Title:     cfg.Generator.Title,
		Timeout:   cfg.Generator.RequestTimeout.Duration(),
		RateLimit: cfg.Generator.RateLimit,
		Burst:     cfg.Generator.Burst,
		Logger:    logger.Named("llm"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	deps.runner = generation.NewRunner(gen, generation.Options{
		Timeout:   cfg.Generator.AttemptTimeout.Duration(),
		Heartbeat: cfg.Generator.Heartbeat.Duration(),
		Logger:    logger.Named("generation"),
		Metrics:   generation.NewMetrics(logger),
	})
	logger.Info("Generator configured",
		zap.String("provider", cfg.Generator.Provider),
		zap.String("model", cfg.Generator.Model))

	deps.redactor, err = secrets.New(cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redactor: %w", err)
	}
	return deps, nil
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embeddings.Provider, error) {
	p, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
		CacheDir:  cfg.Embeddings.CacheDir,
		Timeout:   cfg.Embeddings.Timeout.Duration(),
		Logger:    logger.Named("embeddings"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	logger.Info("Embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model))
	return p, nil
}

// openCatalog loads the taxonomies. Missing matrices are embedded before the
// server starts listening; run "devaudit precompute" ahead of time to avoid it.
func openCatalog(ctx context.Context, cfg *config.Config, embedder embeddings.Provider, logger *zap.Logger) (*catalog.Catalog, error) {
	c, err := catalog.Open(ctx, catalog.Options{
		Paths: catalog.Paths{
			Categories:       cfg.Taxonomy.Categories,
			Risks:            cfg.Taxonomy.Risks,
			CategoriesMatrix: cfg.Index.CategoriesMatrix,
			RisksMatrix:      cfg.Index.RisksMatrix,
		},
		Rebuild:     cfg.Index.Rebuild,
		Embedder:    embedder,
		MaxAttempts: cfg.Index.MaxAttempts,
		Backoff:     cfg.Index.Backoff.Duration(),
		SkipFailed:  cfg.Index.SkipFailed,
		Logger:      logger.Named("catalog"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return c, nil
}
