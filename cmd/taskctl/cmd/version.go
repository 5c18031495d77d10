package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahmetcdevelopment/task-management-api/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of taskctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := printStructured(cmd.OutOrStdout(), config.GetBuildInfo())
		if err != nil || ok {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.VersionString("taskctl"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
