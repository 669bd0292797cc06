package domain

// PackageSettings are the user-editable settings applied to a package's services.
type PackageSettings struct {
	// Environment maps service names to environment entries to set.
	Environment map[string]map[string]string `json:"environment,omitempty"`
}

// ServiceTarget is the desired state of one service after reconciliation.
type ServiceTarget struct {
	Service       string
	Image         string
	ContainerName string
	Aliases       []string
	IP            string
	Environment   map[string]string
}

// Assignment returns the network assignment for the service's container.
func (t ServiceTarget) Assignment() NetworkAssignment {
	return NetworkAssignment{
		ContainerName: t.ContainerName,
		IP:            t.IP,
		Aliases:       t.Aliases,
	}
}

// InstallRequest asks for a package to be installed at a version requirement.
type InstallRequest struct {
	Name        string
	Requirement string
	Settings    PackageSettings
}

// InstallResult reports what an install did.
type InstallResult struct {
	// Resolved is the full set of packages that were installed or updated.
	Resolved ResolvedDependencySet

	// Artifacts maps package names to their acquired bundles.
	Artifacts map[string]Artifact

	// Skipped maps core packages that failed and were tolerated to their error.
	Skipped map[string]error

	// Network is the network reconciliation report for the installed containers.
	Network *ReconcileReport
}

// ReconcileReport summarises one network reconciliation pass.
type ReconcileReport struct {
	State NetworkState

	// Connected are containers that were (re)attached.
	Connected []string

	// Unchanged are containers that already matched.
	Unchanged []string

	// Disconnected are containers removed from the network, e.g. to free an address.
	Disconnected []string

	// Failed maps containers that could not be reconciled to their last error.
	Failed map[string]error
}

// OK reports whether every container reconciled.
func (r *ReconcileReport) OK() bool {
	return len(r.Failed) == 0
}
