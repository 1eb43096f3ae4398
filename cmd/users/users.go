package users

import "github.com/spf13/cobra"

var (
	UsersCmd = &cobra.Command{
		Use:   "users",
		Short: "This command groups subcommands for managing Nintendo accounts.",
		Long: `
Usage: nxauth users <subcommand> [options]

  This command groups subcommands for managing the Nintendo accounts
  nxauth knows about. Accounts are added with their session token; one
  account is selected at a time and used when no --user flag is given.

  Add an account from a session token:

      $ nxauth users add --token <session-token>

  List the stored accounts:

      $ nxauth users list

  Please see the individual subcommand help for detailed usage information.
`,
	}
)

func init() {
	UsersCmd.AddCommand(AddCmd)
	UsersCmd.AddCommand(ListCmd)
	UsersCmd.AddCommand(SelectCmd)
	UsersCmd.AddCommand(ForgetCmd)
}
