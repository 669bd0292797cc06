// Package commands implements the CLI commands for pkgd.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/pkgd/internal/app"
	"go.trai.ch/pkgd/internal/build"
)

// CLI represents the command line interface for pkgd.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	ConfigureLogging(opts app.LogOptions)
	Install(ctx context.Context, opts app.InstallOptions) error
	Resolve(ctx context.Context, name, requirement string) error
	Reconcile(ctx context.Context) error
	Uninstall(ctx context.Context, name string) error
	Status(ctx context.Context, names []string) error
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "pkgd",
		Short:         "Install and run container packages on this node",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logs")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		verbose, _ := cmd.Flags().GetBool("verbose")
		c.app.ConfigureLogging(app.LogOptions{JSON: jsonLogs, Verbose: verbose})
	}

	rootCmd.AddCommand(c.newInstallCmd())
	rootCmd.AddCommand(c.newResolveCmd())
	rootCmd.AddCommand(c.newReconcileCmd())
	rootCmd.AddCommand(c.newUninstallCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
