package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/rescue/internal/control"
	"github.com/vietddude/rescue/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
	noWatch bool
)

var rootCmd = &cobra.Command{
	Use:   "rescue",
	Short: "Fault recovery service for design-to-markup jobs",
	Long: `Rescue classifies failures raised while turning designs into markup, runs
recovery strategies against them, and always hands back a usable result.`,
	Run: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recovery service with its health and inspection endpoints",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable config hot reload")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file. When the path was not given explicitly
// and the default file is absent, built-in defaults are used.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		def := config.Default()
		return &def, nil
	}
	return nil, err
}

// setupLogging installs the default logger: tint through stylelog for
// terminals, JSON for log collectors.
func setupLogging(cfg config.LoggingConfig) {
	slogLevel := slog.LevelInfo
	if err := slogLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		slogLevel = slog.LevelInfo
	}
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	if strings.EqualFold(cfg.Format, "json") {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

func runServe(cmd *cobra.Command, args []string) {
	// Load Configuration
	cfg, err := loadConfig(cmd)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	var opts []control.AppOption
	if !noWatch {
		if _, err := os.Stat(cfgPath); err == nil {
			opts = append(opts, control.WithConfigPath(cfgPath))
		}
	}

	// Initialize App
	app, err := control.NewApp(cfg, opts...)
	if err != nil {
		slog.Error("Failed to initialize recovery service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start recovery service", "error", err)
		os.Exit(1)
	}

	slog.Info("Recovery service started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
