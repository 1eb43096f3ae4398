package token

import "github.com/spf13/cobra"

var (
	TokenCmd = &cobra.Command{
		Use:   "token",
		Short: "This command groups subcommands for working with service credentials.",
		Long: `
Usage: nxauth token <subcommand> [options]

  This command groups subcommands for obtaining the short-lived
  credentials a service expects, derived from a stored session token.

  Get (or reuse) the Coral credential set for the selected account:

      $ nxauth token get --service coral

  Please see the individual subcommand help for detailed usage information.
`,
	}
)

func init() {
	TokenCmd.AddCommand(GetCmd)
}
