package ports

import (
	"context"

	"go.trai.ch/pkgd/internal/core/domain"
)

// ComposePlan is a staged, not yet written, compose file.
type ComposePlan struct {
	Package string
	Path    string
	Data    []byte
	Targets []domain.ServiceTarget

	// Previous is the content Commit replaced. Existed is false when Commit created the file.
	Previous []byte
	Existed  bool
}

// ComposeReconciler merges desired settings into on-disk service definitions.
type ComposeReconciler interface {
	// Plan re-reads the package's compose file (or uses template when none exists yet)
	// and returns the merged result without writing it.
	Plan(ctx context.Context, manifest domain.Manifest, template []byte, settings domain.PackageSettings) (*ComposePlan, error)

	// Commit writes every plan or none of them.
	Commit(ctx context.Context, plans []*ComposePlan) error

	// Restore puts back what Commit replaced for each plan.
	Restore(ctx context.Context, plans []*ComposePlan) error

	// Targets reads the service targets of an installed package.
	Targets(ctx context.Context, pkg string) ([]domain.ServiceTarget, error)
}
