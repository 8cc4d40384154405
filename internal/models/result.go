package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PolicyErrorResult carries the failure details a handler or resolver
// reported for a single file.
type PolicyErrorResult struct {
	// Error is the primary error message.
	Error string `json:"error,omitempty"`

	// ErrorMessages is the legacy multi-message form.
	ErrorMessages []string `json:"errorMessages,omitempty"`

	// Name and File are legacy fields set by pre-batch handlers. The batch
	// path never produces them.
	Name string `json:"name,omitempty"`
	File string `json:"file,omitempty"`

	// Fixable reports whether the violation can be auto-fixed.
	Fixable *bool `json:"fixable,omitempty"`

	// Fixed is tri-state: true means the handler remediated the violation
	// itself, false means a fix was attempted and failed, nil means no fix
	// was attempted.
	Fixed *bool `json:"fixed,omitempty"`

	// ManualFix holds instructions for fixing the violation by hand.
	ManualFix string `json:"manualFix,omitempty"`
}

// UnmarshalJSON accepts the legacy field aliases "autoFixable" (for
// fixable) and "resolved" (for fixed) alongside the canonical names.
func (p *PolicyErrorResult) UnmarshalJSON(data []byte) error {
	type alias PolicyErrorResult
	aux := struct {
		*alias
		AutoFixable *bool `json:"autoFixable,omitempty"`
		Resolved    *bool `json:"resolved,omitempty"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.Fixable == nil {
		p.Fixable = aux.AutoFixable
	}
	if p.Fixed == nil {
		p.Fixed = aux.Resolved
	}
	return nil
}

// HandlerResult is the outcome of running a handler or resolver on one
// file: either a pass, or a failure with details. Failure is nil exactly
// when Passed is true, so fields like Fixed are only meaningful on the
// failure variant.
type HandlerResult struct {
	Passed  bool
	Failure *PolicyErrorResult
}

// Pass returns the passing result.
func Pass() HandlerResult {
	return HandlerResult{Passed: true}
}

// Fail returns a failure result with the given details.
func Fail(details PolicyErrorResult) HandlerResult {
	return HandlerResult{Failure: &details}
}

// IsPass reports whether the check passed.
func (r HandlerResult) IsPass() bool {
	return r.Passed
}

// IsFixed reports whether an auto-fix was attempted and succeeded.
func (r HandlerResult) IsFixed() bool {
	return r.Failure != nil && r.Failure.Fixed != nil && *r.Failure.Fixed
}

// IsFixFailed reports whether an auto-fix was attempted but failed.
func (r HandlerResult) IsFixFailed() bool {
	return r.Failure != nil && r.Failure.Fixed != nil && !*r.Failure.Fixed
}

// IsFixable reports whether the violation is advertised as auto-fixable.
func (r HandlerResult) IsFixable() bool {
	return r.Failure != nil && r.Failure.Fixable != nil && *r.Failure.Fixable
}

// ErrorMessage returns the failure message, joining the legacy
// multi-message form with "; " when the primary message is absent.
// Returns "" for passes and failures that carried no message.
func (r HandlerResult) ErrorMessage() string {
	if r.Failure == nil {
		return ""
	}
	if r.Failure.Error != "" {
		return r.Failure.Error
	}
	return strings.Join(r.Failure.ErrorMessages, "; ")
}

// ManualFix returns the manual fix instructions, if any.
func (r HandlerResult) ManualFix() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.ManualFix
}

// ParseHandlerData decodes a raw single-file handler/resolver result:
// boolean true means pass, an object is a failure. A boolean false is an
// unexpected condition on the legacy wire (it conflates a malformed
// handler with a policy failure) and is rejected as an error.
func ParseHandlerData(data json.RawMessage) (HandlerResult, error) {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			return Pass(), nil
		}
		return HandlerResult{}, fmt.Errorf("handler returned false (unexpected; failures must be reported as objects)")
	}

	var details PolicyErrorResult
	if err := json.Unmarshal(data, &details); err != nil {
		return HandlerResult{}, fmt.Errorf("failed to parse handler result: %w", err)
	}
	return Fail(details), nil
}

// FileResult pairs a file path with its handler/resolver outcome.
type FileResult struct {
	File   string
	Result HandlerResult
}

// CompactBatchFailureItem is one failing file in a compact batch response.
type CompactBatchFailureItem struct {
	File          string   `json:"file"`
	Error         string   `json:"error,omitempty"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
	Fixable       *bool    `json:"fixable,omitempty"`
	Fixed         *bool    `json:"fixed,omitempty"`
	ManualFix     string   `json:"manualFix,omitempty"`
}

// CompactBatchResponse is the batch wire shape shared by both backends:
// passing files as bare strings, failures with detail. The union of pass
// and fail covers the input file set; order is not guaranteed.
type CompactBatchResponse struct {
	Pass []string                  `json:"pass"`
	Fail []CompactBatchFailureItem `json:"fail"`
}

// ExpandCompact converts a compact batch response into per-file results.
// Legacy name/file duplicate fields are left unset; the batch path does
// not produce them.
func ExpandCompact(batch CompactBatchResponse) []FileResult {
	results := make([]FileResult, 0, len(batch.Pass)+len(batch.Fail))

	for _, file := range batch.Pass {
		results = append(results, FileResult{File: file, Result: Pass()})
	}

	for _, item := range batch.Fail {
		results = append(results, FileResult{
			File: item.File,
			Result: Fail(PolicyErrorResult{
				Error:         item.Error,
				ErrorMessages: item.ErrorMessages,
				Fixable:       item.Fixable,
				Fixed:         item.Fixed,
				ManualFix:     item.ManualFix,
			}),
		})
	}

	return results
}

// Compact is the inverse of ExpandCompact: it partitions per-file results
// back into the compact wire shape.
func Compact(results []FileResult) CompactBatchResponse {
	batch := CompactBatchResponse{Pass: []string{}, Fail: []CompactBatchFailureItem{}}

	for _, fr := range results {
		if fr.Result.IsPass() {
			batch.Pass = append(batch.Pass, fr.File)
			continue
		}
		item := CompactBatchFailureItem{File: fr.File}
		if f := fr.Result.Failure; f != nil {
			item.Error = f.Error
			item.ErrorMessages = f.ErrorMessages
			item.Fixable = f.Fixable
			item.Fixed = f.Fixed
			item.ManualFix = f.ManualFix
		}
		batch.Fail = append(batch.Fail, item)
	}

	return batch
}
