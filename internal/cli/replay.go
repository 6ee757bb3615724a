package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/rescue/internal/control"
	"github.com/vietddude/rescue/internal/core/domain"
	"github.com/vietddude/rescue/internal/recovery"
)

var (
	replayFile        string
	replayOut         string
	replayConcurrency int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run recovery for the faults listed in a YAML file and print the results as JSON",
	Run:   runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "faults.yaml", "YAML file listing the faults to replay")
	replayCmd.Flags().StringVar(&replayOut, "out", "", "write results here instead of stdout")
	replayCmd.Flags().IntVar(&replayConcurrency, "concurrency", 4, "faults handled at once")
	rootCmd.AddCommand(replayCmd)
}

// FaultSpec is one entry of a replay file.
type FaultSpec struct {
	JobID    string         `yaml:"job_id"`
	Phase    string         `yaml:"phase"`
	Step     string         `yaml:"step"`
	Message  string         `yaml:"message"`
	Category string         `yaml:"category"` // skips message classification when set
	Input    string         `yaml:"input"`    // becomes the original data
	Metadata map[string]any `yaml:"metadata"`
	Retry    *RetrySpec     `yaml:"retry"`
}

// RetrySpec simulates an operation that fails FailTimes times, then returns Result.
type RetrySpec struct {
	FailTimes int    `yaml:"fail_times"`
	Result    string `yaml:"result"`
}

// ReplayResult pairs a fault with its recovery outcome.
type ReplayResult struct {
	Index  int                   `json:"index"`
	JobID  string                `json:"job_id"`
	Phase  string                `json:"phase"`
	Result domain.RecoveryResult `json:"result"`
}

type categorizedError struct {
	msg      string
	category domain.ErrorCategory
}

func (e *categorizedError) Error() string                   { return e.msg }
func (e *categorizedError) Category() domain.ErrorCategory { return e.category }

var _ recovery.Categorized = (*categorizedError)(nil)

// ParseFaults decodes a replay file.
func ParseFaults(data []byte) ([]FaultSpec, error) {
	var file struct {
		Faults []FaultSpec `yaml:"faults"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse faults: %w", err)
	}
	for i, f := range file.Faults {
		if f.JobID == "" || f.Phase == "" {
			return nil, fmt.Errorf("fault %d: job_id and phase are required", i)
		}
	}
	return file.Faults, nil
}

func (f FaultSpec) fault() error {
	msg := f.Message
	if msg == "" {
		msg = "unknown error"
	}
	if f.Category != "" {
		return &categorizedError{msg: msg, category: domain.ErrorCategory(f.Category)}
	}
	return errors.New(msg)
}

func (f FaultSpec) errorContext() domain.ErrorContext {
	ec := domain.ErrorContext{
		JobID:    f.JobID,
		Phase:    f.Phase,
		Step:     f.Step,
		Metadata: f.Metadata,
	}
	if f.Retry != nil {
		var calls atomic.Int64
		retry := *f.Retry
		ec.Operation = func(ctx context.Context) (any, error) {
			if int(calls.Add(1)) <= retry.FailTimes {
				return nil, errors.New("connection reset by peer")
			}
			return retry.Result, nil
		}
	}
	return ec
}

// Replay handles every fault through engine, at most concurrency at a time.
// Results keep the order of faults.
func Replay(ctx context.Context, engine *recovery.Engine, faults []FaultSpec, concurrency int) ([]ReplayResult, error) {
	results := make([]ReplayResult, len(faults))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, f := range faults {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var original any
			if f.Input != "" {
				original = f.Input
			}
			results[i] = ReplayResult{
				Index:  i,
				JobID:  f.JobID,
				Phase:  f.Phase,
				Result: engine.Handle(gctx, f.fault(), f.errorContext(), original),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeResults(w io.Writer, results []ReplayResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// writeResultsTo writes to path, or stdout when path is empty. The file is
// closed before returning so callers may exit right after.
func writeResultsTo(path string, results []ReplayResult) error {
	if path == "" {
		return writeResults(os.Stdout, results)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeResults(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runReplay(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	data, err := os.ReadFile(replayFile)
	if err != nil {
		slog.Error("Failed to read faults file", "file", replayFile, "error", err)
		os.Exit(1)
	}
	faults, err := ParseFaults(data)
	if err != nil {
		slog.Error("Invalid faults file", "file", replayFile, "error", err)
		os.Exit(1)
	}

	app, err := control.NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize recovery service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Replaying faults", "file", replayFile, "count", len(faults), "concurrency", replayConcurrency)
	results, replayErr := Replay(ctx, app.Engine(), faults, replayConcurrency)

	if err := app.Stop(context.Background()); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}
	if replayErr != nil {
		slog.Error("Replay interrupted", "error", replayErr)
		os.Exit(1)
	}

	if err := writeResultsTo(replayOut, results); err != nil {
		slog.Error("Failed to write results", "file", replayOut, "error", err)
		os.Exit(1)
	}

	stats := app.Engine().ErrorStats()
	slog.Info("Replay finished", "faults", len(results), "resolved", stats.Resolved, "unresolved", stats.Unresolved())
}
