package models

import "encoding/json"

// IPC method names understood by the sidecar.
const (
	MethodLoadConfig       = "load_config"
	MethodRunHandler       = "run_handler"
	MethodRunResolver      = "run_resolver"
	MethodRunHandlerBatch  = "run_handler_batch"
	MethodRunResolverBatch = "run_resolver_batch"
	MethodShutdown         = "shutdown"
)

// IPCRequest is the request envelope, one JSON object per line.
type IPCRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// IPCResponse is the response envelope. When OK is false the request
// failed and Error carries the message, if any.
type IPCResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// LoadConfigParams asks the sidecar to load the policy configuration.
type LoadConfigParams struct {
	ConfigPath string `json:"configPath,omitempty"`
	GitRoot    string `json:"gitRoot"`
}

// RunHandlerParams runs a single policy handler on one file. Legacy
// pre-batch call; the orchestrator uses the batch methods.
type RunHandlerParams struct {
	PolicyName string `json:"policyName"`
	File       string `json:"file"`
	Root       string `json:"root"`
	Resolve    bool   `json:"resolve"`
}

// RunResolverParams runs a single policy resolver on one file. Legacy
// pre-batch call.
type RunResolverParams struct {
	PolicyName string `json:"policyName"`
	File       string `json:"file"`
	Root       string `json:"root"`
}

// RunHandlerBatchParams runs one policy's handler over a batch of files.
// The policy is identified by its load-order index to keep the payload
// small.
type RunHandlerBatchParams struct {
	PolicyID int      `json:"policyId"`
	Files    []string `json:"files"`
	Resolve  bool     `json:"resolve"`
}

// RunResolverBatchParams runs one policy's resolver over a batch of
// files. Resolvers always attempt a fix, so there is no resolve flag.
type RunResolverBatchParams struct {
	PolicyID int      `json:"policyId"`
	Files    []string `json:"files"`
}
