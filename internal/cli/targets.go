package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the configured targets",
	Long:  `Print the resolved target registry, without credentials, in configuration order.`,
	Run: func(cmd *cobra.Command, args []string) {
		gatewayApp := getApp(cmd)
		defer gatewayApp.Close()

		descriptors := gatewayApp.Registry.All()
		if len(descriptors) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no targets configured")
			return
		}
		for _, d := range descriptors {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.Name, d.Address, d.Username)
		}
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
