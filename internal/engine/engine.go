// Package engine owns the policy-first batching orchestrator: one handler
// batch call per policy covering all its matching files, followed by at
// most one resolver batch for the failures that can still be fixed.
// Batching per policy keeps the cross-boundary call count at O(policies)
// instead of O(files x policies).
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tylerbutler/repopo/internal/models"
	"github.com/tylerbutler/repopo/internal/observability/logging"
	otelobs "github.com/tylerbutler/repopo/internal/observability/otel"
	"github.com/tylerbutler/repopo/internal/policy"
)

// Options controls one check run.
type Options struct {
	// Fix requests auto-remediation where policies support it.
	Fix bool

	// Verbose enables per-policy progress and the final stats summary.
	Verbose bool

	// Quiet suppresses resolution notices; failures are always printed.
	Quiet bool

	// Stderr receives human-readable progress and failure reports.
	// Defaults to os.Stderr.
	Stderr io.Writer
}

// PolicyOutcome aggregates one policy's results for a run.
type PolicyOutcome struct {
	Checked  int
	Failed   int
	Resolved int
}

// Summary is the aggregate outcome of a check run.
type Summary struct {
	TotalFiles int
	Failures   int
	Resolved   int
	Policies   map[string]PolicyOutcome
}

// Success reports whether the run recorded no hard failures.
func (s *Summary) Success() bool {
	return s.Failures == 0
}

// RunCheck drives a full check run: compile, filter, then one batch pass
// per policy in load order. Policy-domain failures are reported and
// collected; configuration and backend transport errors abort the run.
func RunCheck(ctx context.Context, backend Backend, config *models.LoadConfigResponse, files []string, gitRoot string, opts Options) (*Summary, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	log := logging.From(ctx)

	if opts.Verbose {
		fmt.Fprintf(stderr, "%d policies loaded.\n", len(config.Policies))
		for _, p := range config.Policies {
			fmt.Fprintf(stderr, "  - %s\n", p.Name)
		}
	}

	compiled, globalExcludes, err := policy.Compile(config)
	if err != nil {
		return nil, err
	}

	// Drop empty paths and globally excluded files before any policy runs.
	eligible := make([]string, 0, len(files))
fileLoop:
	for _, f := range files {
		if f == "" {
			continue
		}
		for _, re := range globalExcludes {
			if re.MatchString(f) {
				if opts.Verbose {
					fmt.Fprintf(stderr, "Excluded all handlers: %s\n", f)
				}
				continue fileLoop
			}
		}
		eligible = append(eligible, f)
	}

	stats := newPerfStats()
	stats.totalFiles = len(eligible)

	summary := &Summary{
		TotalFiles: len(eligible),
		Policies:   make(map[string]PolicyOutcome),
	}

	if opts.Fix && !opts.Quiet {
		fmt.Fprintln(stderr, "Resolving errors if possible.")
	}

	for policyID := range compiled {
		p := &compiled[policyID]

		matching := make([]string, 0)
		for _, f := range eligible {
			if !p.Match.MatchString(f) {
				continue
			}
			if p.Excluded(f) {
				if opts.Verbose {
					fmt.Fprintf(stderr, "Excluded from '%s' policy: %s\n", p.Meta.Name, f)
				}
				continue
			}
			matching = append(matching, f)
		}

		if len(matching) == 0 {
			continue
		}

		outcome := PolicyOutcome{Checked: len(matching)}

		if opts.Verbose {
			fmt.Fprintf(stderr, "Policy '%s': checking %d files (batch)\n", p.Meta.Name, len(matching))
		}

		start := time.Now()
		results, err := runBatchSpan(ctx, "repopo.handler_batch", p.Meta.Name, len(matching), func() ([]models.FileResult, error) {
			return backend.RunHandlerBatch(policyID, matching, gitRoot, opts.Fix)
		})
		stats.recordHandler(p.Meta.Name, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("error executing batch handler for policy %q: %w", p.Meta.Name, err)
		}

		var needsResolver []string
		for _, fr := range results {
			result := fr.Result

			if result.IsPass() {
				continue
			}

			if result.IsFixed() {
				outcome.Resolved++
				summary.Resolved++
				if !opts.Quiet {
					fmt.Fprintf(stderr, "Resolved %s policy failure for file: %s\n", p.Meta.Name, fr.File)
				}
				continue
			}

			if result.IsFixFailed() {
				outcome.Failed++
				summary.Failures++
				fmt.Fprintf(stderr, "Error fixing %s policy failure in %s\n", p.Meta.Name, fr.File)
				if msg := result.ErrorMessage(); msg != "" {
					fmt.Fprintf(stderr, "\t%s\n", msg)
				}
				continue
			}

			// Failure with no fix attempted: hand it to the standalone
			// resolver when fix mode is on and the policy has one.
			if opts.Fix && p.Meta.HasResolver {
				needsResolver = append(needsResolver, fr.File)
				continue
			}

			outcome.Failed++
			summary.Failures++
			fixableTag := ""
			if result.IsFixable() {
				fixableTag = " (autofixable)"
			}
			fmt.Fprintf(stderr, "'%s' policy failure%s: %s\n", p.Meta.Name, fixableTag, fr.File)
			if msg := result.ErrorMessage(); msg != "" {
				fmt.Fprintf(stderr, "\t%s\n", msg)
			}
		}

		if len(needsResolver) > 0 {
			if opts.Verbose {
				fmt.Fprintf(stderr, "Policy '%s': resolving %d files (batch)\n", p.Meta.Name, len(needsResolver))
			}

			start := time.Now()
			resolved, err := runBatchSpan(ctx, "repopo.resolver_batch", p.Meta.Name, len(needsResolver), func() ([]models.FileResult, error) {
				return backend.RunResolverBatch(policyID, needsResolver, gitRoot)
			})
			stats.recordResolver(p.Meta.Name, time.Since(start))
			if err != nil {
				return nil, fmt.Errorf("error executing batch resolver for policy %q: %w", p.Meta.Name, err)
			}

			for _, fr := range resolved {
				if fr.Result.IsFixed() || fr.Result.IsPass() {
					outcome.Resolved++
					summary.Resolved++
					if !opts.Quiet {
						fmt.Fprintf(stderr, "Resolved %s policy failure for file: %s\n", p.Meta.Name, fr.File)
					}
					continue
				}

				outcome.Failed++
				summary.Failures++
				fmt.Fprintf(stderr, "Error fixing %s policy failure in %s\n", p.Meta.Name, fr.File)
				if msg := fr.Result.ErrorMessage(); msg != "" {
					fmt.Fprintf(stderr, "\t%s\n", msg)
				}
			}
		}

		summary.Policies[p.Meta.Name] = outcome
		log.Debug("engine", "policy complete",
			"policy", p.Meta.Name,
			"checked", outcome.Checked,
			"failed", outcome.Failed,
			"resolved", outcome.Resolved)
	}

	if opts.Verbose {
		stats.log(stderr)
	}

	return summary, nil
}

// runBatchSpan wraps one backend batch call in an OTel span when tracing
// is enabled.
func runBatchSpan(ctx context.Context, spanName, policyName string, fileCount int, call func() ([]models.FileResult, error)) ([]models.FileResult, error) {
	h := otelobs.From(ctx)
	if h == nil {
		return call()
	}

	_, span := h.Tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("repopo.policy", policyName),
			attribute.Int("repopo.files", fileCount),
		))
	defer span.End()

	results, err := call()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// RunList prints the configured policies.
func RunList(config *models.LoadConfigResponse, verbose bool, w io.Writer) {
	fmt.Fprintln(w, "Configured policies:")
	for _, p := range config.Policies {
		resolverTag := ""
		if p.HasResolver {
			resolverTag = " [auto-fixable]"
		}

		fmt.Fprintf(w, "  %s  %s%s\n", p.Name, p.Description, resolverTag)

		if verbose {
			fmt.Fprintf(w, "    match: %s\n", p.MatchPattern)
			if len(p.ExcludeFiles) > 0 {
				fmt.Fprintf(w, "    excludes: %s\n", joinPatterns(p.ExcludeFiles))
			}
		}
	}

	fmt.Fprintf(w, "\n%d policies configured.\n", len(config.Policies))
}

func joinPatterns(patterns []string) string {
	out := ""
	for i, p := range patterns {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
