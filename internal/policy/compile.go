// Package policy compiles declarative policy metadata into ready-to-match
// form. Match patterns arrive in the JS RegExp dialect; the subset used by
// policy configs compiles directly under Go's regexp syntax, with the "i"
// flag mapped to an inline (?i) prefix.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tylerbutler/repopo/internal/models"
)

// CompiledPolicy is a policy with its matchers ready for use. It is built
// once at the start of a run and never mutated afterwards.
type CompiledPolicy struct {
	Meta     models.PolicyMeta
	Match    *regexp.Regexp
	Excludes []*regexp.Regexp
}

// Excluded reports whether a per-policy exclude pattern covers the given
// repo-relative file path. Callers check Match separately so they can
// tell an excluded file apart from a non-matching one.
func (p *CompiledPolicy) Excluded(file string) bool {
	for _, re := range p.Excludes {
		if re.MatchString(file) {
			return true
		}
	}
	return false
}

// CompileJSRegex builds a Go regexp from a JS RegExp pattern and flag
// string. Only the "i" flag is recognized; other flags are ignored.
func CompileJSRegex(pattern, flags string) (*regexp.Regexp, error) {
	goPattern := pattern
	if strings.Contains(flags, "i") {
		goPattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(goPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex pattern %q (flags %q): %w", pattern, flags, err)
	}
	return re, nil
}

// Compile turns the loaded configuration into compiled policies plus the
// global exclude matchers. Any compile failure is fatal for the whole run
// and names the offending policy; partial compilation is not attempted.
// Exclude patterns always compile case-insensitive, independent of the
// policy's own flags.
func Compile(config *models.LoadConfigResponse) ([]CompiledPolicy, []*regexp.Regexp, error) {
	compiled := make([]CompiledPolicy, 0, len(config.Policies))

	for _, meta := range config.Policies {
		match, err := CompileJSRegex(meta.MatchPattern, meta.MatchFlags)
		if err != nil {
			return nil, nil, fmt.Errorf("policy %q: %w", meta.Name, err)
		}

		excludes := make([]*regexp.Regexp, 0, len(meta.ExcludeFiles))
		for _, pattern := range meta.ExcludeFiles {
			re, err := CompileJSRegex(pattern, "i")
			if err != nil {
				return nil, nil, fmt.Errorf("policy %q: failed to compile exclude pattern: %w", meta.Name, err)
			}
			excludes = append(excludes, re)
		}

		compiled = append(compiled, CompiledPolicy{Meta: meta, Match: match, Excludes: excludes})
	}

	globalExcludes := make([]*regexp.Regexp, 0, len(config.ExcludeFiles))
	for _, pattern := range config.ExcludeFiles {
		re, err := CompileJSRegex(pattern, "i")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compile global exclude pattern: %w", err)
		}
		globalExcludes = append(globalExcludes, re)
	}

	return compiled, globalExcludes, nil
}
