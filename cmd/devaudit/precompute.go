package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devaudit/internal/catalog"
	"github.com/fyrsmithlabs/devaudit/internal/config"
	"github.com/fyrsmithlabs/devaudit/internal/embeddings"
	"github.com/fyrsmithlabs/devaudit/internal/logging"
)

var (
	// precompute command flags
	pcConfigPath string
	pcForce      bool
)

func init() {
	rootCmd.AddCommand(precomputeCmd)
	precomputeCmd.Flags().StringVar(&pcConfigPath, "config", "", "config file (default ~/.config/devaudit/config.yaml)")
	precomputeCmd.Flags().BoolVar(&pcForce, "force", false, "Embed every entry again even if the matrices are current")
}

var precomputeCmd = &cobra.Command{
	Use:   "precompute",
	Short: "Embed the taxonomies and save their matrices",
	Long: `Embed every entry of the deviation category and risk taxonomies and save
the matrices next to the configured paths, so that devauditd starts without
calling the embedding provider.

Matrices that already match their taxonomy are kept unless --force is given.

Examples:
  devaudit precompute
  devaudit precompute --force --config /etc/devaudit/config.yaml`,
	RunE: runPrecompute,
}

func runPrecompute(cmd *cobra.Command, args []string) error {
	src, err := config.Read(pcConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg, err := src.Config()
	if err != nil {
		return err
	}

	logCfg := logging.NewDefaultConfig()
	if err := src.Section("logging", logCfg); err != nil {
		return err
	}
	logger, err := logging.New(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
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
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer embedder.Close()

	c, err := catalog.Open(cmd.Context(), catalog.Options{
		Paths: catalog.Paths{
			Categories:       cfg.Taxonomy.Categories,
			Risks:            cfg.Taxonomy.Risks,
			CategoriesMatrix: cfg.Index.CategoriesMatrix,
			RisksMatrix:      cfg.Index.RisksMatrix,
		},
		Rebuild:     pcForce || cfg.Index.Rebuild,
		Embedder:    embedder,
		MaxAttempts: cfg.Index.MaxAttempts,
		Backoff:     cfg.Index.Backoff.Duration(),
		SkipFailed:  cfg.Index.SkipFailed,
		Progress:    progressPrinter(cmd.ErrOrStderr(), 10),
		Logger:      logger.Named("catalog"),
	})
	if err != nil {
		return err
	}

	logger.Info("matrices ready",
		zap.String("categories", cfg.Index.CategoriesMatrix),
		zap.String("risks", cfg.Index.RisksMatrix))
	fmt.Fprintf(cmd.OutOrStdout(), "Categories: %d entries -> %s\n", c.Categories().Taxonomy.Len(), cfg.Index.CategoriesMatrix)
	fmt.Fprintf(cmd.OutOrStdout(), "Risks:      %d entries -> %s\n", c.Risks().Taxonomy.Len(), cfg.Index.RisksMatrix)
	return nil
}

// progressPrinter reports every step-th row and the last one. Both matrices
// are built concurrently, so writes are serialized.
func progressPrinter(w io.Writer, step int) func(matrix string, done, total int) {
	var mu sync.Mutex
	return func(matrix string, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if done%step == 0 || done == total {
			fmt.Fprintf(w, "%s: %d/%d\n", matrix, done, total)
		}
	}
}
