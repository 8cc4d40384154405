// Package gate evaluates CEL rules against a check run's summary. A
// gate lets CI pipelines fail a run on conditions beyond "any policy
// failed", such as a failure-count budget or a per-policy threshold.
package gate

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/tylerbutler/repopo/internal/engine"
)

// Rule is one named CEL expression over the run summary. The expression
// must evaluate to a boolean; false fails the gate.
type Rule struct {
	Name       string `yaml:"name"`
	Expr       string `yaml:"expr"`
	FailureMsg string `yaml:"failure_msg,omitempty"`
}

// Config is a gate rule file.
type Config struct {
	Rules []Rule `yaml:"rules"`
}

// Result is the outcome of one rule evaluation.
type Result struct {
	RuleName   string
	Passed     bool
	FailureMsg string
}

// Load reads a gate configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gate config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse gate config: %w", err)
	}
	return &config, nil
}

// Engine evaluates gate rules with CEL.
type Engine struct {
	env *cel.Env
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// Validate compiles every rule expression and reports all failures at
// once.
func (e *Engine) Validate(config *Config) error {
	var errs []string
	for _, rule := range config.Rules {
		_, issues := e.env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			errs = append(errs, fmt.Sprintf("rule %q: %v", rule.Name, issues.Err()))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("gate validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Evaluate runs every rule against the summary.
func (e *Engine) Evaluate(config *Config, summary *engine.Summary) ([]Result, error) {
	input := summaryToMap(summary)

	results := make([]Result, 0, len(config.Rules))
	for _, rule := range config.Rules {
		result, err := e.evaluateRule(rule, input)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rule %q: %w", rule.Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) evaluateRule(rule Rule, input map[string]interface{}) (Result, error) {
	ast, issues := e.env.Compile(rule.Expr)
	if issues != nil && issues.Err() != nil {
		return Result{
			RuleName:   rule.Name,
			Passed:     false,
			FailureMsg: fmt.Sprintf("CEL compile error: %v", issues.Err()),
		}, nil
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return Result{
			RuleName:   rule.Name,
			Passed:     false,
			FailureMsg: fmt.Sprintf("CEL program error: %v", err),
		}, nil
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"input": input,
	})
	if err != nil {
		return Result{
			RuleName:   rule.Name,
			Passed:     false,
			FailureMsg: fmt.Sprintf("CEL evaluation error: %v", err),
		}, nil
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return Result{
			RuleName:   rule.Name,
			Passed:     false,
			FailureMsg: fmt.Sprintf("Rule expression must return boolean, got %T", out.Value()),
		}, nil
	}

	result := Result{RuleName: rule.Name, Passed: passed}
	if !passed {
		result.FailureMsg = rule.FailureMsg
	}
	return result, nil
}

// summaryToMap converts the run summary for CEL.
func summaryToMap(summary *engine.Summary) map[string]interface{} {
	policies := make(map[string]interface{}, len(summary.Policies))
	for name, outcome := range summary.Policies {
		policies[name] = map[string]interface{}{
			"checked":  outcome.Checked,
			"failed":   outcome.Failed,
			"resolved": outcome.Resolved,
		}
	}
	return map[string]interface{}{
		"total_files": summary.TotalFiles,
		"failures":    summary.Failures,
		"resolved":    summary.Resolved,
		"success":     summary.Success(),
		"policies":    policies,
	}
}
