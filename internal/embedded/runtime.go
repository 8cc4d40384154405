// Package embedded drives the in-process execution backend: a goja
// interpreter that evaluates one pre-bundled script payload containing
// all policy handler/resolver code plus a compatibility shim layer.
//
// Host capabilities (synchronous filesystem primitives, a diagnostic
// writer, a working-directory accessor) are bound into the global scope
// before the bundle is evaluated. Batch entry points may use
// asynchronous control flow internally, so each invocation proceeds in
// three phases: reset the shared result slot and start the chain, drain
// the pending-job queue to completion, then read the result slot.
package embedded

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/tylerbutler/repopo/internal/models"
)

const (
	// Ceiling on job-queue drain iterations. A chain still pending after
	// this many jobs is treated as runaway and the call fails.
	maxJobIterations = 500000

	defaultMaxCallStackSize = 8192
)

// Options configures resource bounds for the script engine.
type Options struct {
	// MaxCallStackSize bounds interpreter stack depth. Zero means the
	// default bound.
	MaxCallStackSize int

	// Stderr receives script diagnostic output. Defaults to os.Stderr.
	Stderr io.Writer
}

// Runtime hosts the script engine for one run. Single-owner: all calls
// must come from the thread that created it.
type Runtime struct {
	vm      *goja.Runtime
	gitRoot string
	stderr  io.Writer
	jobs    []pendingJob
}

type pendingJob struct {
	fn goja.Callable
}

// New creates a runtime, binds the host capability globals, and
// evaluates the bundle. The git root is the base directory for relative
// path resolution in the filesystem primitives.
func New(gitRoot, bundleJS string, opts Options) (*Runtime, error) {
	stack := opts.MaxCallStackSize
	if stack == 0 {
		stack = defaultMaxCallStackSize
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(stack)

	r := &Runtime{vm: vm, gitRoot: gitRoot, stderr: stderr}

	if err := r.registerFSGlobals(); err != nil {
		return nil, fmt.Errorf("failed to register filesystem globals: %w", err)
	}
	if err := r.registerSchedulerGlobals(); err != nil {
		return nil, fmt.Errorf("failed to register scheduler globals: %w", err)
	}
	if _, err := vm.RunString(nodeGlobalsJS); err != nil {
		return nil, fmt.Errorf("failed to create environment shim globals: %w", err)
	}
	if _, err := vm.RunString(bundleJS); err != nil {
		return nil, fmt.Errorf("failed to evaluate script bundle: %w", err)
	}

	return r, nil
}

// resolvePath resolves a possibly-relative path against the git root.
// Absolute paths pass through unchanged.
func (r *Runtime) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.gitRoot, path)
}

// throw raises a catchable script error carrying a host-style message.
func (r *Runtime) throw(format string, args ...any) {
	panic(r.vm.NewGoError(fmt.Errorf(format, args...)))
}

func (r *Runtime) registerFSGlobals() error {
	globals := map[string]any{
		"__fs_readFileSync": func(path, _ string) string {
			full := r.resolvePath(path)
			data, err := os.ReadFile(full)
			if err != nil {
				r.throw("ENOENT: no such file or directory, open '%s': %v", full, err)
			}
			return string(data)
		},
		"__fs_writeFileSync": func(path, data string) {
			full := r.resolvePath(path)
			_ = os.MkdirAll(filepath.Dir(full), 0o755)
			if err := os.WriteFile(full, []byte(data), 0o644); err != nil {
				r.throw("Failed to write '%s': %v", full, err)
			}
		},
		"__fs_existsSync": func(path string) bool {
			_, err := os.Stat(r.resolvePath(path))
			return err == nil
		},
		"__fs_statSync": func(path string) string {
			full := r.resolvePath(path)
			info, err := os.Stat(full)
			if err != nil {
				r.throw("ENOENT: no such file or directory, stat '%s': %v", full, err)
			}
			stat := map[string]any{
				"size":        info.Size(),
				"isDirectory": info.IsDir(),
				"isFile":      info.Mode().IsRegular(),
				"mode":        0,
				"mtimeMs":     info.ModTime().UnixMilli(),
				"atimeMs":     0,
				"ctimeMs":     0,
			}
			out, err := json.Marshal(stat)
			if err != nil {
				r.throw("Failed to stat '%s': %v", full, err)
			}
			return string(out)
		},
		"__fs_copyFileSync": func(src, dest string) {
			fullSrc := r.resolvePath(src)
			fullDest := r.resolvePath(dest)
			data, err := os.ReadFile(fullSrc)
			if err == nil {
				err = os.WriteFile(fullDest, data, 0o644)
			}
			if err != nil {
				r.throw("Failed to copy '%s' to '%s': %v", fullSrc, fullDest, err)
			}
		},
		"__fs_mkdirSync": func(path string, recursive bool) {
			full := r.resolvePath(path)
			var err error
			if recursive {
				err = os.MkdirAll(full, 0o755)
			} else {
				err = os.Mkdir(full, 0o755)
			}
			if err != nil {
				r.throw("Failed to mkdir '%s': %v", full, err)
			}
		},
		"__fs_readdirSync": func(path string) string {
			full := r.resolvePath(path)
			entries, err := os.ReadDir(full)
			if err != nil {
				r.throw("ENOENT: no such file or directory, scandir '%s': %v", full, err)
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			out, err := json.Marshal(names)
			if err != nil {
				r.throw("Failed to scandir '%s': %v", full, err)
			}
			return string(out)
		},
		"__fs_unlinkSync": func(path string) {
			full := r.resolvePath(path)
			if err := os.Remove(full); err != nil {
				r.throw("Failed to unlink '%s': %v", full, err)
			}
		},
		"__fs_rmdirSync": func(path string) {
			full := r.resolvePath(path)
			if err := os.Remove(full); err != nil {
				r.throw("Failed to rmdir '%s': %v", full, err)
			}
		},
		"__fs_renameSync": func(oldPath, newPath string) {
			fullOld := r.resolvePath(oldPath)
			fullNew := r.resolvePath(newPath)
			if err := os.Rename(fullOld, fullNew); err != nil {
				r.throw("Failed to rename '%s' to '%s': %v", fullOld, fullNew, err)
			}
		},
		"__stderr_write": func(msg string) {
			fmt.Fprint(r.stderr, msg)
		},
		"__process_cwd": func() string {
			return r.gitRoot
		},
	}

	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// registerSchedulerGlobals binds the host-side job queue. goja drains
// promise microtasks on its own when control returns to the host, so
// only timer-style callbacks need explicit queueing.
func (r *Runtime) registerSchedulerGlobals() error {
	if err := r.vm.Set("__host_enqueue", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			r.throw("__host_enqueue expects a function")
		}
		r.jobs = append(r.jobs, pendingJob{fn: fn})
		return goja.Undefined()
	}); err != nil {
		return err
	}
	_, err := r.vm.RunString(schedulerJS)
	return err
}

// drainJobs runs queued jobs until none remain. Jobs enqueued while
// draining are picked up in order. A job that throws does not stop the
// drain; this keeps one malformed entry from wedging the rest of the
// queue.
func (r *Runtime) drainJobs() error {
	for iterations := 0; len(r.jobs) > 0; iterations++ {
		if iterations >= maxJobIterations {
			return fmt.Errorf("script job queue exceeded %d iterations, aborting", maxJobIterations)
		}
		job := r.jobs[0]
		r.jobs = r.jobs[1:]
		_, _ = job.fn(goja.Undefined())
	}
	return nil
}

// escapeSingleQuoted escapes a string for embedding in a single-quoted
// script literal.
func escapeSingleQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// callBatch invokes a batch entry point by name and returns the
// serialized compact response it stored in the result slot.
func (r *Runtime) callBatch(fnName string, policyID int, files []string, root string, resolve *bool) (string, error) {
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("failed to marshal file list: %w", err)
	}
	filesArg := escapeSingleQuoted(string(filesJSON))
	rootArg := escapeSingleQuoted(root)

	var callJS string
	if resolve != nil {
		callJS = fmt.Sprintf("%s(%d, '%s', '%s', %t)", fnName, policyID, filesArg, rootArg, *resolve)
	} else {
		callJS = fmt.Sprintf("%s(%d, '%s', '%s')", fnName, policyID, filesArg, rootArg)
	}

	// Phase 1: reset the result slot and start the async chain.
	if err := r.vm.Set("__repopo_lastResult", goja.Null()); err != nil {
		return "", err
	}
	if _, err := r.vm.RunString(callJS); err != nil {
		return "", fmt.Errorf("script eval error in %s: %w", fnName, err)
	}

	// Phase 2: drain queued jobs until the chain completes.
	if err := r.drainJobs(); err != nil {
		return "", err
	}

	// Phase 3: read the result slot.
	result := r.vm.Get("__repopo_lastResult")
	if result == nil || goja.IsNull(result) || goja.IsUndefined(result) {
		return "", fmt.Errorf("%s left no result after job queue drained", fnName)
	}
	return result.String(), nil
}

// RunHandlerBatch runs one policy's handler over a batch of files.
func (r *Runtime) RunHandlerBatch(policyID int, files []string, root string, resolve bool) ([]models.FileResult, error) {
	raw, err := r.callBatch("runHandlerBatchSync", policyID, files, root, &resolve)
	if err != nil {
		return nil, err
	}
	var batch models.CompactBatchResponse
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return nil, fmt.Errorf("failed to parse handler batch response %q: %w", raw, err)
	}
	return models.ExpandCompact(batch), nil
}

// RunResolverBatch runs one policy's resolver over a batch of files.
// No resolve flag is passed: resolver entry points always attempt the
// fix.
func (r *Runtime) RunResolverBatch(policyID int, files []string, root string) ([]models.FileResult, error) {
	raw, err := r.callBatch("runResolverBatchSync", policyID, files, root, nil)
	if err != nil {
		return nil, err
	}
	var batch models.CompactBatchResponse
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return nil, fmt.Errorf("failed to parse resolver batch response %q: %w", raw, err)
	}
	return models.ExpandCompact(batch), nil
}

// Metadata returns the policy metadata the bundle stored during
// evaluation.
func (r *Runtime) Metadata() (*models.LoadConfigResponse, error) {
	value := r.vm.Get("__repopo_metadata")
	if value == nil || goja.IsNull(value) || goja.IsUndefined(value) {
		return nil, fmt.Errorf("bundle did not publish policy metadata")
	}
	var config models.LoadConfigResponse
	if err := json.Unmarshal([]byte(value.String()), &config); err != nil {
		return nil, fmt.Errorf("failed to parse policy metadata: %w", err)
	}
	return &config, nil
}
