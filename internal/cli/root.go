package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JamesDodds/ipmi-api-gateway/internal/app"
	"github.com/JamesDodds/ipmi-api-gateway/internal/config"
)

type contextKey string

const appKey contextKey = "app"

var rootCmd = &cobra.Command{
	Use:   "ipmi-gateway",
	Short: "ipmi-gateway is a REST gateway for BMC power management",
	Long: `ipmi-gateway exposes the power state of a fleet of servers over a
small REST API. It talks to each server's BMC with ipmitool, either
directly or through an SSH jump host, and fans bulk commands out
concurrently with per-target timeouts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		gatewayApp, err := app.New(cfg)
		if err != nil {
			return err
		}
		ctx := context.WithValue(cmd.Context(), appKey, gatewayApp)
		cmd.SetContext(ctx)

		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", fmt.Sprintf("config file (default is $HOME/%s)", config.DefaultConfigFileName))
}

func getApp(cmd *cobra.Command) *app.App {
	if a, ok := cmd.Context().Value(appKey).(*app.App); ok {
		return a
	}
	return nil
}
