package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tylerbutler/repopo/internal/engine"
	"github.com/tylerbutler/repopo/internal/gate"
	"github.com/tylerbutler/repopo/internal/gitfiles"
	"github.com/tylerbutler/repopo/internal/observability"
	"github.com/tylerbutler/repopo/internal/observability/logging"
	otelobs "github.com/tylerbutler/repopo/internal/observability/otel"
)

// checkCmd runs every configured policy against the repository.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check and enforce policies on repository files",
	Long: `Runs every configured policy against the repository's files and reports
violations. With --fix, policies that carry a resolver attempt to repair
the violations they find.

Examples:
  # Check all tracked files
  repopo check

  # Fix what can be fixed
  repopo check --fix

  # Check a file list from stdin with the embedded engine
  git diff --name-only | repopo check --stdin --backend embedded --bundle dist/bundle.mjs

  # Apply a CI gate over the run summary
  repopo check --gate .repopo-gate.yaml`,
	RunE: runCheckCmd,
}

var (
	checkFixFlag         bool
	checkStdinFlag       bool
	checkVerboseFlag     bool
	checkQuietFlag       bool
	checkConfigFlag      string
	checkBackendFlag     string
	checkSidecarPathFlag string
	checkBundleFlag      string
	checkGateFlag        string
)

func init() {
	checkCmd.Flags().BoolVarP(&checkFixFlag, "fix", "f", false, "Fix policy violations if possible")
	checkCmd.Flags().BoolVar(&checkStdinFlag, "stdin", false, "Read list of files from stdin instead of git")
	checkCmd.Flags().BoolVarP(&checkVerboseFlag, "verbose", "v", false, "Show verbose output including per-policy timing")
	checkCmd.Flags().BoolVarP(&checkQuietFlag, "quiet", "q", false, "Suppress all output except errors")
	checkCmd.Flags().StringVarP(&checkConfigFlag, "config", "c", "", "Path to the config file")
	checkCmd.Flags().StringVar(&checkBackendFlag, "backend", "sidecar", "Execution backend: sidecar or embedded")
	checkCmd.Flags().StringVar(&checkSidecarPathFlag, "sidecar-path", "", "Path to the Node.js sidecar script")
	checkCmd.Flags().StringVar(&checkBundleFlag, "bundle", "", "Path to the policy bundle for the embedded backend")
	checkCmd.Flags().StringVar(&checkGateFlag, "gate", "", "Path to a YAML gate rule file evaluated over the run summary")
}

// GetCheckCmd export
func GetCheckCmd() *cobra.Command {
	return checkCmd
}

func runCheckCmd(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)
	start := time.Now()

	if h := otelobs.From(ctx); h != nil {
		var span trace.Span
		ctx, span = h.Tracer.Start(ctx, "repopo.check",
			trace.WithAttributes(
				attribute.String("repopo.op_id", observability.OpID(ctx)),
				attribute.String("repopo.command", "check"),
				attribute.String("repopo.backend", checkBackendFlag),
				attribute.Bool("repopo.fix", checkFixFlag),
			))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed")
			} else {
				span.SetStatus(codes.Ok, "success")
			}
			span.End()
		}()
	}

	log.Event(ctx, "check.start", map[string]any{"backend": checkBackendFlag, "fix": checkFixFlag})

	var resultStatus string
	defer func() {
		log.Event(ctx, "check.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus,
		})
	}()
	resultStatus = "fail"

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	gitRoot, err := gitfiles.FindRoot(cwd)
	if err != nil {
		return err
	}
	if checkVerboseFlag {
		fmt.Fprintf(os.Stderr, "Git root: %s\n", gitRoot)
	}

	var files []string
	if checkStdinFlag {
		files, err = gitfiles.ReadPaths(os.Stdin)
	} else {
		files, err = gitfiles.List(gitRoot)
	}
	if err != nil {
		return err
	}
	if checkVerboseFlag {
		fmt.Fprintf(os.Stderr, "%d files to check.\n", len(files))
	}

	rb, err := openBackend(backendOptions{
		kind:        checkBackendFlag,
		sidecarPath: checkSidecarPathFlag,
		bundlePath:  checkBundleFlag,
		configPath:  checkConfigFlag,
		gitRoot:     gitRoot,
		verbose:     checkVerboseFlag,
	})
	if err != nil {
		return err
	}
	defer rb.close()

	summary, err := engine.RunCheck(ctx, rb.backend, rb.config, files, gitRoot, engine.Options{
		Fix:     checkFixFlag,
		Verbose: checkVerboseFlag,
		Quiet:   checkQuietFlag,
		Stderr:  os.Stderr,
	})
	if err != nil {
		return err
	}

	gateOK := true
	if checkGateFlag != "" {
		gateOK, err = runGate(checkGateFlag, summary)
		if err != nil {
			return err
		}
	}

	if !summary.Success() || !gateOK {
		policiesFailed = true
		return nil
	}
	resultStatus = "pass"
	return nil
}

// runGate evaluates gate rules against the summary and reports failures.
func runGate(path string, summary *engine.Summary) (bool, error) {
	config, err := gate.Load(path)
	if err != nil {
		return false, err
	}
	gateEngine, err := gate.NewEngine()
	if err != nil {
		return false, err
	}
	results, err := gateEngine.Evaluate(config, summary)
	if err != nil {
		return false, err
	}

	ok := true
	for _, result := range results {
		if result.Passed {
			continue
		}
		ok = false
		if result.FailureMsg != "" {
			fmt.Fprintf(os.Stderr, "Gate rule '%s' failed: %s\n", result.RuleName, result.FailureMsg)
		} else {
			fmt.Fprintf(os.Stderr, "Gate rule '%s' failed\n", result.RuleName)
		}
	}
	return ok, nil
}
