package models

// PolicyMeta describes a configured policy. The handler and resolver code
// stays on the execution backend; only the matching metadata crosses over.
type PolicyMeta struct {
	// Name identifies the policy in config and output.
	Name string `json:"name"`

	// Description of what the policy checks.
	Description string `json:"description"`

	// MatchPattern is the source string of the policy's file-match regex,
	// in the JS RegExp dialect, without delimiters.
	MatchPattern string `json:"matchPattern"`

	// MatchFlags holds the RegExp flags (only "i" is recognized).
	MatchFlags string `json:"matchFlags,omitempty"`

	// HasResolver reports whether the policy ships a standalone auto-fix.
	HasResolver bool `json:"hasResolver,omitempty"`

	// ExcludeFiles are per-policy exclusion patterns (regex strings).
	ExcludeFiles []string `json:"excludeFiles,omitempty"`
}

// LoadConfigResponse is the configuration payload supplied by the config
// collaborator: the sidecar's load_config response, or the metadata slot
// populated by the embedded bundle.
type LoadConfigResponse struct {
	Policies     []PolicyMeta `json:"policies"`
	ExcludeFiles []string     `json:"excludeFiles,omitempty"`
}
