package domain

import "go.trai.ch/zerr"

// InstallState is the lifecycle state of a package on the host.
type InstallState int

const (
	// StateToInstall is queued and not yet started.
	StateToInstall InstallState = iota
	// StateInstalling is in the middle of the pipeline.
	StateInstalling
	// StateInstalled completed successfully.
	StateInstalled
	// StateInstallingError failed somewhere in the pipeline.
	StateInstallingError
	// StateUninstalled was removed from the host.
	StateUninstalled
)

// String returns the name of the state.
func (s InstallState) String() string {
	switch s {
	case StateToInstall:
		return "to-install"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateInstallingError:
		return "installing-error"
	case StateUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// ParseInstallState returns the state named s.
func ParseInstallState(s string) (InstallState, bool) {
	for st := StateToInstall; st <= StateUninstalled; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StateToInstall, false
}

// InstallEvent drives InstallState transitions.
type InstallEvent int

const (
	// EventQueue requests an install.
	EventQueue InstallEvent = iota
	// EventStart begins the pipeline.
	EventStart
	// EventSucceed completes the pipeline.
	EventSucceed
	// EventFail aborts the pipeline.
	EventFail
	// EventUninstall removes the package.
	EventUninstall
)

// String returns the name of the event.
func (e InstallEvent) String() string {
	switch e {
	case EventQueue:
		return "queue"
	case EventStart:
		return "start"
	case EventSucceed:
		return "succeed"
	case EventFail:
		return "fail"
	case EventUninstall:
		return "uninstall"
	default:
		return "unknown"
	}
}

// Transition returns the state reached from s on event e.
func (s InstallState) Transition(e InstallEvent) (InstallState, error) {
	switch e {
	case EventQueue:
		if s != StateInstalling {
			return StateToInstall, nil
		}
	case EventStart:
		if s == StateToInstall {
			return StateInstalling, nil
		}
	case EventSucceed:
		if s == StateInstalling {
			return StateInstalled, nil
		}
	case EventFail:
		if s == StateInstalling {
			return StateInstallingError, nil
		}
	case EventUninstall:
		if s == StateInstalled || s == StateInstallingError {
			return StateUninstalled, nil
		}
	}
	err := zerr.Wrap(ErrIllegalTransition, s.String()+" on "+e.String())
	return s, zerr.With(err, "state", s.String())
}
