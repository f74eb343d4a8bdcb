package cli

import (
	"github.com/spf13/cobra"

	"github.com/JamesDodds/ipmi-api-gateway/internal/dispatch"
	"github.com/JamesDodds/ipmi-api-gateway/internal/executor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify connectivity to all configured BMCs",
	Long:  `Query the power status of every configured target and report which are reachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		gatewayApp := getApp(cmd)
		defer gatewayApp.Close()
		logger := gatewayApp.Logger

		logger.Info("Starting connectivity check")
		targets, err := gatewayApp.Resolver.ResolveAll()
		if err != nil {
			logger.Warn("No targets configured")
			return
		}

		outcomes := gatewayApp.Dispatcher.Fleet(cmd.Context(), targets, executor.Command{Kind: executor.PowerStatus})
		result := dispatch.Aggregate(outcomes, gatewayApp.Registry.Names())

		for _, out := range result.Outcomes {
			switch out.Status {
			case dispatch.StatusSuccess:
				logger.Info("Check successful", "target", out.Target, "power_state", out.Payload.PowerState)
			default:
				logger.Error("Check failed", "target", out.Target, "status", out.Status, "error", out.Message)
			}
		}
		logger.Info("Connectivity check finished",
			"overall", result.Overall,
			"total", result.Total,
			"successful", result.Successful,
			"failed", result.Failed)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
