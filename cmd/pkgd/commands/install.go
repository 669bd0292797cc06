package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/pkgd/internal/app"
)

// splitRef splits "name@requirement". A missing requirement means the latest version.
func splitRef(ref string) (name, requirement string) {
	name, requirement, _ = strings.Cut(ref, "@")
	return name, requirement
}

func (c *CLI) newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <package>[@<version>]",
		Short: "Install a package with its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, requirement := splitRef(args[0])
			env, _ := cmd.Flags().GetStringArray("env")
			return c.app.Install(cmd.Context(), app.InstallOptions{
				Name:        name,
				Requirement: requirement,
				Env:         env,
			})
		},
	}
	cmd.Flags().StringArrayP("env", "e", nil, "Set an environment entry as [service:]KEY=VALUE")
	return cmd
}

func (c *CLI) newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <package>[@<version>]",
		Short: "Show the packages an install would touch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, requirement := splitRef(args[0])
			return c.app.Resolve(cmd.Context(), name, requirement)
		},
	}
}
