// Package sidecar drives the out-of-process execution backend: a
// persistent Node.js subprocess that owns the policy handler/resolver
// code and speaks newline-delimited JSON over its stdin/stdout pair.
//
// The protocol is strict request/response with at most one outstanding
// request; the mutex enforces the alternation structurally even though
// the orchestrator is single-threaded.
package sidecar

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/tylerbutler/repopo/internal/models"
)

// Sidecar is a connection to the policy sidecar process.
type Sidecar struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
	mu  sync.Mutex
}

// Spawn starts the sidecar script with node. The working directory is set
// to the repository root so all file paths exchanged are repo-relative.
func Spawn(scriptPath, gitRoot string) (*Sidecar, error) {
	cmd := exec.Command("node", scriptPath)
	cmd.Dir = gitRoot
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create sidecar stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create sidecar stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn sidecar at %s: %w", scriptPath, err)
	}

	return &Sidecar{
		cmd: cmd,
		in:  stdin,
		out: bufio.NewReader(stdout),
	}, nil
}

// newPipeSidecar builds a Sidecar over arbitrary pipes. Test hook.
func newPipeSidecar(in io.WriteCloser, out io.Reader) *Sidecar {
	return &Sidecar{in: in, out: bufio.NewReader(out)}
}

// request sends one request line and reads one response line.
func (s *Sidecar) request(req models.IPCRequest) (*models.IPCResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal IPC request: %w", err)
	}

	if _, err := s.in.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write to sidecar stdin: %w", err)
	}

	line, err := s.out.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, fmt.Errorf("sidecar closed stdout unexpectedly")
		}
		if err != io.EOF {
			return nil, fmt.Errorf("failed to read from sidecar stdout: %w", err)
		}
	}

	var resp models.IPCResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sidecar response: %w", err)
	}

	if !resp.OK {
		if resp.Error != "" {
			return nil, fmt.Errorf("sidecar error: %s", resp.Error)
		}
		return nil, fmt.Errorf("sidecar returned error with no message")
	}

	return &resp, nil
}

// LoadConfig asks the sidecar to load the policy configuration and return
// policy metadata plus global excludes.
func (s *Sidecar) LoadConfig(configPath, gitRoot string) (*models.LoadConfigResponse, error) {
	resp, err := s.request(models.IPCRequest{
		Method: models.MethodLoadConfig,
		Params: models.LoadConfigParams{ConfigPath: configPath, GitRoot: gitRoot},
	})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("no data in load_config response")
	}

	var config models.LoadConfigResponse
	if err := json.Unmarshal(resp.Data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse load_config response data: %w", err)
	}
	return &config, nil
}

// RunHandler runs a single policy handler on one file. Legacy pre-batch
// call kept for wire compatibility; the orchestrator uses the batch path.
func (s *Sidecar) RunHandler(policyName, file, root string, resolve bool) (models.HandlerResult, error) {
	resp, err := s.request(models.IPCRequest{
		Method: models.MethodRunHandler,
		Params: models.RunHandlerParams{PolicyName: policyName, File: file, Root: root, Resolve: resolve},
	})
	if err != nil {
		return models.HandlerResult{}, err
	}
	if resp.Data == nil {
		return models.HandlerResult{}, fmt.Errorf("no data in run_handler response")
	}
	return models.ParseHandlerData(resp.Data)
}

// RunResolver runs a single policy resolver on one file. Legacy pre-batch
// call.
func (s *Sidecar) RunResolver(policyName, file, root string) (models.HandlerResult, error) {
	resp, err := s.request(models.IPCRequest{
		Method: models.MethodRunResolver,
		Params: models.RunResolverParams{PolicyName: policyName, File: file, Root: root},
	})
	if err != nil {
		return models.HandlerResult{}, err
	}
	if resp.Data == nil {
		return models.HandlerResult{}, fmt.Errorf("no data in run_resolver response")
	}
	return models.ParseHandlerData(resp.Data)
}

// RunHandlerBatch runs one policy's handler over a batch of files. The
// root parameter is unused on this path: the sidecar runs with its
// working directory at the repository root.
func (s *Sidecar) RunHandlerBatch(policyID int, files []string, root string, resolve bool) ([]models.FileResult, error) {
	resp, err := s.request(models.IPCRequest{
		Method: models.MethodRunHandlerBatch,
		Params: models.RunHandlerBatchParams{PolicyID: policyID, Files: files, Resolve: resolve},
	})
	if err != nil {
		return nil, err
	}
	return parseBatchData(resp.Data, "run_handler_batch")
}

// RunResolverBatch runs one policy's resolver over a batch of files.
func (s *Sidecar) RunResolverBatch(policyID int, files []string, root string) ([]models.FileResult, error) {
	resp, err := s.request(models.IPCRequest{
		Method: models.MethodRunResolverBatch,
		Params: models.RunResolverBatchParams{PolicyID: policyID, Files: files},
	})
	if err != nil {
		return nil, err
	}
	return parseBatchData(resp.Data, "run_resolver_batch")
}

func parseBatchData(data json.RawMessage, method string) ([]models.FileResult, error) {
	if data == nil {
		return nil, fmt.Errorf("no data in %s response", method)
	}
	var batch models.CompactBatchResponse
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	return models.ExpandCompact(batch), nil
}

// Shutdown asks the sidecar to exit and waits for the process. Best
// effort: a failed write is ignored so teardown always completes, and
// Shutdown runs on the error unwind path too.
func (s *Sidecar) Shutdown() error {
	data, err := json.Marshal(models.IPCRequest{Method: models.MethodShutdown})
	if err == nil {
		_, _ = s.in.Write(append(data, '\n'))
	}
	_ = s.in.Close()
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
	return nil
}
