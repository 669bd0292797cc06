package commands

import "github.com/spf13/cobra"

func (c *CLI) newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Reattach every installed package to the private network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Reconcile(cmd.Context())
		},
	}
}

func (c *CLI) newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <package>",
		Short: "Stop a package and remove it from the node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Uninstall(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <package>...",
		Short: "Show the install state of packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Status(cmd.Context(), args)
		},
	}
}
