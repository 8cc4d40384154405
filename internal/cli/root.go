package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tylerbutler/repopo/internal/observability"
	"github.com/tylerbutler/repopo/internal/observability/logging"
	otelobs "github.com/tylerbutler/repopo/internal/observability/otel"
	"github.com/tylerbutler/repopo/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "repopo",
	Short: "Repository policy enforcement engine",
	Long: `repopo: police your repo files.
Enforces file-level policies across a repository: each policy is a match
pattern plus a check/auto-fix routine executed by a sidecar process or an
embedded script engine.`,
	Version:           version.BuildVersion(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupContext,
}

var (
	logFormatFlag string
	logLevelFlag  string
	logOutputFlag string

	otelEnabledFlag     bool
	otelEndpointFlag    string
	otelProtocolFlag    string
	otelInsecureFlag    bool
	otelSampleRatioFlag float64
)

// Run-scoped handles closed by Execute after the command returns.
var (
	activeLogger logging.Logger
	activeOtel   *otelobs.Handle
)

// policiesFailed marks a run that completed but found violations. It
// maps to exit code 1 without an "Error:" line.
var policiesFailed bool

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logFormatFlag, "log-format", "pretty", "Log format: pretty or jsonl")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, or error")
	pf.StringVar(&logOutputFlag, "log-output", "stderr", "Log output: stderr or a file path")
	pf.BoolVar(&otelEnabledFlag, "otel", false, "Enable OpenTelemetry tracing")
	pf.StringVar(&otelEndpointFlag, "otel-endpoint", "", "OTLP endpoint (e.g. http://localhost:4318)")
	pf.StringVar(&otelProtocolFlag, "otel-protocol", otelobs.ProtocolHTTP, "OTLP protocol: otlphttp or otlpgrpc")
	pf.BoolVar(&otelInsecureFlag, "otel-insecure", false, "Allow insecure OTLP connections")
	pf.Float64Var(&otelSampleRatioFlag, "otel-sample-ratio", 1.0, "Trace sampling ratio, 0 to 1")

	rootCmd.AddCommand(GetCheckCmd())
	rootCmd.AddCommand(GetListCmd())
}

func setupContext(cmd *cobra.Command, args []string) error {
	ctx := observability.WithOpID(cmd.Context())

	log, err := logging.NewLogger(logging.Config{
		Format: logFormatFlag,
		Level:  logLevelFlag,
		Output: logOutputFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	activeLogger = log
	ctx = logging.WithLogger(ctx, log)

	if otelEnabledFlag {
		cfg := otelobs.DefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = otelEndpointFlag
		cfg.Protocol = otelProtocolFlag
		cfg.Insecure = otelInsecureFlag
		cfg.SampleRatio = otelSampleRatioFlag

		handle, err := otelobs.Init(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		activeOtel = handle
		ctx = otelobs.WithHandle(ctx, handle)
	}

	cmd.SetContext(ctx)
	return nil
}

func teardown() {
	if activeOtel != nil {
		_ = activeOtel.Shutdown(context.Background())
	}
	if activeLogger != nil {
		_ = activeLogger.Close()
	}
}

func Execute() {
	err := rootCmd.Execute()
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if policiesFailed {
		os.Exit(1)
	}
}
