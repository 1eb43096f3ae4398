package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/monitor"
	"github.com/stephnangue/nxauth/cmd/token"
	"github.com/stephnangue/nxauth/cmd/users"
)

var (
	// Global flag for the config file path
	flagConfig string

	nxauthCmd = &cobra.Command{
		Use:   "nxauth",
		Short: "Nxauth manages session tokens and service credentials for Nintendo services",
		Long: `Nxauth turns long-lived session tokens into the short-lived credentials
the individual services expect, caches them, renews them before use, and
keeps authentication attempts under the account authority's rate limit.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Set the config path in the environment if provided via flag
			if flagConfig != "" {
				os.Setenv("NXAUTH_CONFIG", flagConfig)
			}
		},
	}
)

func Execute() {
	if err := nxauthCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Add global config flag to the root command
	nxauthCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to the HCL config file (can also use NXAUTH_CONFIG env var)")

	nxauthCmd.AddCommand(users.UsersCmd)
	nxauthCmd.AddCommand(token.TokenCmd)
	nxauthCmd.AddCommand(monitor.MonitorCmd)
}
