package monitor

import "github.com/spf13/cobra"

var (
	MonitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "This command groups subcommands for presence monitoring.",
		Long: `
Usage: nxauth monitor <subcommand> [options]

  This command groups subcommands for watching friend presence through
  the Coral API and recording state changes.

  Monitor presence for the selected account until interrupted:

      $ nxauth monitor presence

  Show the last recorded snapshot:

      $ nxauth monitor show

  Please see the individual subcommand help for detailed usage information.
`,
	}
)

func init() {
	MonitorCmd.AddCommand(PresenceCmd)
	MonitorCmd.AddCommand(ShowCmd)
}
