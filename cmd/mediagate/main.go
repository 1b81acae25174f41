package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zen-systems/mediagate/pkg/adapter"
	"github.com/zen-systems/mediagate/pkg/catalog"
	"github.com/zen-systems/mediagate/pkg/config"
	"github.com/zen-systems/mediagate/pkg/metrics"
)

var (
	configFile  string
	catalogFile string
	logLevel    string
	metricsAddr string

	logger    = zap.NewNop()
	collector *metrics.Collector
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mediagate",
		Short: "Generate images and videos through one interface over many vendors",
		Long: `Mediagate sends a prompt to an image or video generation vendor
	(OpenAI, Google, Stability AI, Luma, HuggingFace, a local diffusion server,
	xAI or Replicate) and saves what comes back.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			logger = l
			if metricsAddr != "" {
				collector = metrics.NewCollector("mediagate", logger)
				go func() {
					if err := collector.Serve(metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server stopped", zap.Error(err))
					}
				}()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.mediagate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "configs/models.yaml", "model catalog overlay used when ~/.mediagate/models.yaml is absent")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(imageCmd())
	rootCmd.AddCommand(videoCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func loadSettings() (*config.Settings, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func loadCatalog() (*catalog.Catalog, error) {
	return catalog.LoadWithFallback(catalogFile)
}

func newFactory() (*adapter.Factory, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	f := adapter.NewFactory(settings, cat, logger)
	f.Metrics = collector
	return f, nil
}
