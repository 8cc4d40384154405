package policy

import (
	"strings"
	"testing"

	"github.com/tylerbutler/repopo/internal/models"
)

func TestCompileJSRegexCaseInsensitiveFlag(t *testing.T) {
	re, err := CompileJSRegex(`\.ts$`, "i")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !re.MatchString("src/App.TS") {
		t.Error("expected case-insensitive match with 'i' flag")
	}
}

func TestCompileJSRegexCaseSensitiveByDefault(t *testing.T) {
	re, err := CompileJSRegex(`\.ts$`, "")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if re.MatchString("src/App.TS") {
		t.Error("expected case-sensitive match without flags")
	}
	if !re.MatchString("src/app.ts") {
		t.Error("expected match on lowercase path")
	}
}

func TestCompileJSRegexIgnoresUnknownFlags(t *testing.T) {
	re, err := CompileJSRegex(`\.md$`, "gmu")
	if err != nil {
		t.Fatalf("unknown flags must be ignored, not rejected: %v", err)
	}
	if !re.MatchString("README.md") {
		t.Error("expected match regardless of ignored flags")
	}
}

func TestCompileJSRegexInvalidPattern(t *testing.T) {
	if _, err := CompileJSRegex(`[unclosed`, ""); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestCompileNamesFailingPolicy(t *testing.T) {
	config := &models.LoadConfigResponse{
		Policies: []models.PolicyMeta{
			{Name: "good", MatchPattern: `\.ts$`},
			{Name: "broken", MatchPattern: `[`},
		},
	}

	_, _, err := Compile(config)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if got := err.Error(); !strings.Contains(got, "broken") {
		t.Errorf("error should name the failing policy, got %q", got)
	}
}

func TestCompileNamesFailingExcludePolicy(t *testing.T) {
	config := &models.LoadConfigResponse{
		Policies: []models.PolicyMeta{
			{Name: "has-bad-exclude", MatchPattern: `\.ts$`, ExcludeFiles: []string{`(`}},
		},
	}

	_, _, err := Compile(config)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if got := err.Error(); !strings.Contains(got, "has-bad-exclude") {
		t.Errorf("error should name the failing policy, got %q", got)
	}
}

func TestExcludesAlwaysCaseInsensitive(t *testing.T) {
	config := &models.LoadConfigResponse{
		Policies: []models.PolicyMeta{
			{Name: "no-tabs", MatchPattern: `\.ts$`, ExcludeFiles: []string{`generated/`}},
		},
		ExcludeFiles: []string{`node_modules/`},
	}

	compiled, globals, err := Compile(config)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if !compiled[0].Excluded("GENERATED/x.ts") {
		t.Error("per-policy exclude should match case-insensitively")
	}
	if !globals[0].MatchString("NODE_MODULES/x.ts") {
		t.Error("global exclude should match case-insensitively")
	}
}

func TestCompiledPolicyExcluded(t *testing.T) {
	config := &models.LoadConfigResponse{
		Policies: []models.PolicyMeta{
			{Name: "no-tabs", MatchPattern: `\.ts$`, ExcludeFiles: []string{`vendor/`}},
		},
	}

	compiled, _, err := Compile(config)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	p := compiled[0]

	if !p.Match.MatchString("src/a.ts") {
		t.Error("expected match for src/a.ts")
	}
	if p.Match.MatchString("readme.md") {
		t.Error("non-matching extension should not match")
	}
	if !p.Excluded("vendor/a.ts") {
		t.Error("per-policy exclude should cover vendor/a.ts")
	}
	if p.Excluded("src/a.ts") {
		t.Error("src/a.ts should not be excluded")
	}
}
