// internal/domain/course/repository.go
package course

import "context"

// Repository defines read operations for course structure. Authoring is done
// elsewhere; this process only consumes modules and steps.
type Repository interface {
	GetModuleByID(ctx context.Context, id int64) (*Module, error)
	GetFirstModule(ctx context.Context) (*Module, error)
	ListModules(ctx context.Context) ([]*Module, error)

	GetStepByID(ctx context.Context, id int64) (*Step, error)
	ListStepsByModule(ctx context.Context, moduleID int64) ([]*Step, error)

	// ListRequiredTaskStepIDs returns the IDs of steps that gate completion
	// of the module: required, non-informational.
	ListRequiredTaskStepIDs(ctx context.Context, moduleID int64) ([]int64, error)
}
