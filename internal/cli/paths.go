package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveSidecarPath locates the Node.js sidecar script: explicit flag,
// then REPOPO_SIDECAR_PATH, then well-known locations next to the
// binary and under the working directory.
func resolveSidecarPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("REPOPO_SIDECAR_PATH"); env != "" {
		return env, nil
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "sidecar.mjs"),
			filepath.Join(dir, "sidecar", "sidecar.mjs"),
		)
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates,
			filepath.Join(cwd, "sidecar", "sidecar.mjs"),
			filepath.Join(cwd, "sidecar.mjs"),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("could not find the Node.js sidecar script; set REPOPO_SIDECAR_PATH or pass --sidecar-path")
}

// resolveBundlePath locates the pre-bundled script payload for the
// embedded backend: explicit flag, then REPOPO_BUNDLE_PATH, then
// well-known locations under the working directory.
func resolveBundlePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("REPOPO_BUNDLE_PATH"); env != "" {
		return env, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		candidates := []string{
			filepath.Join(cwd, "bundle.mjs"),
			filepath.Join(cwd, "sidecar", "bundle.mjs"),
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("could not find the policy bundle; set REPOPO_BUNDLE_PATH or pass --bundle")
}
