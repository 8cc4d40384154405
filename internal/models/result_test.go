package models

import (
	"encoding/json"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestParseHandlerDataPass(t *testing.T) {
	result, err := ParseHandlerData(json.RawMessage(`true`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsPass() {
		t.Error("expected pass result")
	}
	if result.Failure != nil {
		t.Error("pass result should carry no failure details")
	}
}

func TestParseHandlerDataFalseIsError(t *testing.T) {
	_, err := ParseHandlerData(json.RawMessage(`false`))
	if err == nil {
		t.Fatal("expected error for boolean false handler result")
	}
}

func TestParseHandlerDataFailure(t *testing.T) {
	raw := json.RawMessage(`{"error":"tab found","fixable":true,"manualFix":"replace tabs with spaces"}`)
	result, err := ParseHandlerData(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsPass() {
		t.Fatal("expected failure result")
	}
	if !result.IsFixable() {
		t.Error("expected fixable")
	}
	if result.IsFixed() || result.IsFixFailed() {
		t.Error("fixed should be unset when no fix was attempted")
	}
	if got := result.ErrorMessage(); got != "tab found" {
		t.Errorf("expected error message 'tab found', got %q", got)
	}
	if got := result.ManualFix(); got != "replace tabs with spaces" {
		t.Errorf("expected manual fix instructions, got %q", got)
	}
}

func TestParseHandlerDataMalformed(t *testing.T) {
	_, err := ParseHandlerData(json.RawMessage(`[1,2]`))
	if err == nil {
		t.Fatal("expected error for non-bool, non-object result")
	}
}

func TestPolicyErrorResultLegacyAliases(t *testing.T) {
	raw := `{"error":"bad header","autoFixable":true,"resolved":false}`
	var details PolicyErrorResult
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if details.Fixable == nil || !*details.Fixable {
		t.Error("autoFixable alias not honored")
	}
	if details.Fixed == nil || *details.Fixed {
		t.Error("resolved alias not honored")
	}
}

func TestPolicyErrorResultCanonicalFieldsWin(t *testing.T) {
	raw := `{"fixable":false,"autoFixable":true}`
	var details PolicyErrorResult
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if details.Fixable == nil || *details.Fixable {
		t.Error("canonical fixable field should take precedence over alias")
	}
}

func TestErrorMessageJoinsLegacyMessages(t *testing.T) {
	result := Fail(PolicyErrorResult{ErrorMessages: []string{"first", "second"}})
	if got := result.ErrorMessage(); got != "first; second" {
		t.Errorf("expected joined messages, got %q", got)
	}
}

func TestFixedTriState(t *testing.T) {
	fixed := Fail(PolicyErrorResult{Fixed: boolPtr(true)})
	if !fixed.IsFixed() || fixed.IsFixFailed() {
		t.Error("fixed=true should report IsFixed only")
	}

	failed := Fail(PolicyErrorResult{Fixed: boolPtr(false)})
	if failed.IsFixed() || !failed.IsFixFailed() {
		t.Error("fixed=false should report IsFixFailed only")
	}

	unset := Fail(PolicyErrorResult{})
	if unset.IsFixed() || unset.IsFixFailed() {
		t.Error("unset fixed should report neither")
	}
}

func TestExpandCompactCoversAllFiles(t *testing.T) {
	batch := CompactBatchResponse{
		Pass: []string{"a.ts", "b.ts"},
		Fail: []CompactBatchFailureItem{
			{File: "c.ts", Error: "tab found", Fixable: boolPtr(true)},
			{File: "d.ts", Fixed: boolPtr(true)},
		},
	}

	results := ExpandCompact(batch)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	byFile := make(map[string]HandlerResult)
	for _, fr := range results {
		byFile[fr.File] = fr.Result
	}

	if !byFile["a.ts"].IsPass() || !byFile["b.ts"].IsPass() {
		t.Error("pass files should expand to passing results")
	}
	if byFile["c.ts"].IsPass() || !byFile["c.ts"].IsFixable() {
		t.Error("failure detail lost in expansion")
	}
	if !byFile["d.ts"].IsFixed() {
		t.Error("fixed flag lost in expansion")
	}
	if byFile["c.ts"].Failure.Name != "" || byFile["c.ts"].Failure.File != "" {
		t.Error("batch expansion must leave legacy name/file fields unset")
	}
}

func TestCompactRoundTrip(t *testing.T) {
	original := CompactBatchResponse{
		Pass: []string{"src/ok.ts"},
		Fail: []CompactBatchFailureItem{
			{
				File:          "src/bad.ts",
				Error:         "missing header",
				ErrorMessages: []string{"missing header"},
				Fixable:       boolPtr(true),
				ManualFix:     "add the header",
			},
			{File: "src/worse.ts", Fixed: boolPtr(false), Error: "fix bombed"},
		},
	}

	roundTripped := Compact(ExpandCompact(original))

	origJSON, _ := json.Marshal(original)
	rtJSON, _ := json.Marshal(roundTripped)
	if string(origJSON) != string(rtJSON) {
		t.Errorf("round trip mismatch:\n  original: %s\n  got:      %s", origJSON, rtJSON)
	}
}
