package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tylerbutler/repopo/internal/engine"
	"github.com/tylerbutler/repopo/internal/gitfiles"
	"github.com/tylerbutler/repopo/internal/observability/logging"
)

// listCmd prints the configured policies.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured policies",
	RunE:  runListCmd,
}

var (
	listVerboseFlag     bool
	listConfigFlag      string
	listBackendFlag     string
	listSidecarPathFlag string
	listBundleFlag      string
)

func init() {
	listCmd.Flags().BoolVarP(&listVerboseFlag, "verbose", "v", false, "Show match patterns and excludes")
	listCmd.Flags().StringVarP(&listConfigFlag, "config", "c", "", "Path to the config file")
	listCmd.Flags().StringVar(&listBackendFlag, "backend", "sidecar", "Execution backend: sidecar or embedded")
	listCmd.Flags().StringVar(&listSidecarPathFlag, "sidecar-path", "", "Path to the Node.js sidecar script")
	listCmd.Flags().StringVar(&listBundleFlag, "bundle", "", "Path to the policy bundle for the embedded backend")
}

// GetListCmd export
func GetListCmd() *cobra.Command {
	return listCmd
}

func runListCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logging.From(ctx)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	gitRoot, err := gitfiles.FindRoot(cwd)
	if err != nil {
		return err
	}

	rb, err := openBackend(backendOptions{
		kind:        listBackendFlag,
		sidecarPath: listSidecarPathFlag,
		bundlePath:  listBundleFlag,
		configPath:  listConfigFlag,
		gitRoot:     gitRoot,
		verbose:     listVerboseFlag,
	})
	if err != nil {
		return err
	}
	defer rb.close()

	log.Event(ctx, "list.complete", map[string]any{"policies": len(rb.config.Policies)})

	engine.RunList(rb.config, listVerboseFlag, os.Stdout)
	return nil
}
