// Package app implements the application layer for pkgd.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

// Installer runs install requests and fleet maintenance.
type Installer interface {
	Install(ctx context.Context, req domain.InstallRequest) (*domain.InstallResult, error)
	Resolve(ctx context.Context, req domain.InstallRequest) (domain.ResolvedDependencySet, error)
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
	Uninstall(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (domain.InstallState, error)
}

// logConfigurer is implemented by loggers whose format can change after construction.
type logConfigurer interface {
	SetJSON(enable bool)
	SetVerbose(enable bool)
}

// App represents the main application logic.
type App struct {
	installer Installer
	logger    ports.Logger
	telemetry ports.Telemetry
	out       io.Writer
}

// New creates a new App instance.
func New(installer Installer, log ports.Logger, telemetry ports.Telemetry) *App {
	return &App{
		installer: installer,
		logger:    log,
		telemetry: telemetry,
		out:       os.Stdout,
	}
}

// WithOutput redirects command output. It is primarily used for testing.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// LogOptions selects the log format.
type LogOptions struct {
	JSON    bool
	Verbose bool
}

// ConfigureLogging applies opts to the logger when it supports reconfiguration.
func (a *App) ConfigureLogging(opts LogOptions) {
	if lc, ok := a.logger.(logConfigurer); ok {
		lc.SetJSON(opts.JSON)
		lc.SetVerbose(opts.Verbose)
	}
}

// InstallOptions configuration for the Install method.
type InstallOptions struct {
	Name        string
	Requirement string

	// Env entries are "KEY=VALUE" for the package's own service or "service:KEY=VALUE".
	Env []string
}

// Install installs a package with its dependencies and prints what was done.
func (a *App) Install(ctx context.Context, opts InstallOptions) error {
	settings, err := ParseSettings(opts.Name, opts.Env)
	if err != nil {
		return err
	}

	res, err := a.installer.Install(ctx, domain.InstallRequest{
		Name:        opts.Name,
		Requirement: opts.Requirement,
		Settings:    settings,
	})
	if res != nil {
		a.printInstall(res)
	}
	if err != nil {
		return zerr.Wrap(domain.Classify(err, domain.ErrInstallFailed), "cannot install "+opts.Name)
	}
	return nil
}

// Resolve prints the packages an install would touch.
func (a *App) Resolve(ctx context.Context, name, requirement string) error {
	set, err := a.installer.Resolve(ctx, domain.InstallRequest{Name: name, Requirement: requirement})
	if err != nil {
		return err
	}
	a.printResolved(set)
	return nil
}

// Reconcile converges the private network over every installed package.
func (a *App) Reconcile(ctx context.Context) error {
	report, err := a.installer.Reconcile(ctx)
	if report != nil {
		a.printReport(report)
	}
	return err
}

// Uninstall removes a package from the host.
func (a *App) Uninstall(ctx context.Context, name string) error {
	if err := a.installer.Uninstall(ctx, name); err != nil {
		return err
	}
	a.printState(name, domain.StateUninstalled)
	return nil
}

// Status prints the install state of each named package.
func (a *App) Status(ctx context.Context, names []string) error {
	for _, name := range names {
		st, err := a.installer.Status(ctx, name)
		if err != nil && !errors.Is(err, domain.ErrPackageNotInstalled) {
			return err
		}
		a.printState(name, st)
	}
	return nil
}

// Close flushes the telemetry session.
func (a *App) Close() error {
	return a.telemetry.Close()
}

// ParseSettings turns env entries into package settings. Entries without a service
// apply to the service named after the package.
func ParseSettings(pkg string, entries []string) (domain.PackageSettings, error) {
	settings := domain.PackageSettings{}
	for _, entry := range entries {
		service := pkg
		kv := entry
		if before, after, ok := strings.Cut(entry, ":"); ok && !strings.Contains(before, "=") {
			service, kv = before, after
		}
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" || service == "" {
			return domain.PackageSettings{}, zerr.With(zerr.Wrap(domain.ErrInvalidSetting, "expected [service:]KEY=VALUE"), "entry", entry)
		}
		if settings.Environment == nil {
			settings.Environment = make(map[string]map[string]string)
		}
		if settings.Environment[service] == nil {
			settings.Environment[service] = make(map[string]string)
		}
		settings.Environment[service][key] = value
	}
	return settings, nil
}
