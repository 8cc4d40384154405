package engine

import (
	"github.com/tylerbutler/repopo/internal/models"
)

// Backend executes policy handler and resolver code. Two implementations
// exist: the out-of-process sidecar (internal/sidecar) and the in-process
// script runtime (internal/embedded). Calls are blocking; both methods
// must return one result per input file, whether or not the input was
// sorted or deduplicated.
type Backend interface {
	// RunHandlerBatch runs one policy's handler over a batch of files.
	// The policy is identified by its load-order index. When resolve is
	// true the handler may attempt an inline fix.
	RunHandlerBatch(policyID int, files []string, root string, resolve bool) ([]models.FileResult, error)

	// RunResolverBatch runs one policy's standalone resolver over a batch
	// of files. Resolvers always attempt a fix.
	RunResolverBatch(policyID int, files []string, root string) ([]models.FileResult, error)
}
