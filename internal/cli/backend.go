package cli

import (
	"fmt"
	"os"

	"github.com/tylerbutler/repopo/internal/embedded"
	"github.com/tylerbutler/repopo/internal/engine"
	"github.com/tylerbutler/repopo/internal/models"
	"github.com/tylerbutler/repopo/internal/sidecar"
)

type backendOptions struct {
	kind        string
	sidecarPath string
	bundlePath  string
	configPath  string
	gitRoot     string
	verbose     bool
}

// runBackend is an opened execution backend plus the policy
// configuration it supplied.
type runBackend struct {
	backend engine.Backend
	config  *models.LoadConfigResponse
	close   func()
}

// openBackend constructs the selected execution backend and loads the
// policy configuration through it. The sidecar variant loads config via
// IPC; the embedded variant reads the metadata the bundle published
// during evaluation.
func openBackend(opts backendOptions) (*runBackend, error) {
	switch opts.kind {
	case "sidecar":
		scriptPath, err := resolveSidecarPath(opts.sidecarPath)
		if err != nil {
			return nil, err
		}
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "Using sidecar: %s\n", scriptPath)
		}

		s, err := sidecar.Spawn(scriptPath, opts.gitRoot)
		if err != nil {
			return nil, err
		}
		config, err := s.LoadConfig(opts.configPath, opts.gitRoot)
		if err != nil {
			_ = s.Shutdown()
			return nil, err
		}
		return &runBackend{
			backend: s,
			config:  config,
			close:   func() { _ = s.Shutdown() },
		}, nil

	case "embedded":
		bundlePath, err := resolveBundlePath(opts.bundlePath)
		if err != nil {
			return nil, err
		}
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "Using bundle: %s\n", bundlePath)
		}

		bundleJS, err := os.ReadFile(bundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle %s: %w", bundlePath, err)
		}
		runtime, err := embedded.New(opts.gitRoot, string(bundleJS), embedded.Options{})
		if err != nil {
			return nil, err
		}
		config, err := runtime.Metadata()
		if err != nil {
			return nil, err
		}
		return &runBackend{
			backend: runtime,
			config:  config,
			close:   func() {},
		}, nil

	default:
		return nil, fmt.Errorf("invalid backend: %s (use sidecar or embedded)", opts.kind)
	}
}
