package users

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/helpers"
	"github.com/stephnangue/nxauth/storage"
	"github.com/stephnangue/nxauth/users"
)

var (
	SelectCmd = &cobra.Command{
		Use:           "select <user-id>",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		Short:         "Selects the account other commands operate on",
		Long: `
Usage: nxauth users select <user-id>

  Makes the given account the one used when no --user or --token flag
  is passed to other commands.

      $ nxauth users select 0123456789abcdef
`,
		RunE: runSelect,
	}
)

func runSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := helpers.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	userID := args[0]
	if _, err := users.LoadAccount(ctx, rt.Store, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unknown user %q: add it with 'nxauth users add --token <session-token>'", userID)
		}
		return err
	}

	if err := storage.SetJSON(ctx, rt.Store, storage.SelectedUserKey, userID); err != nil {
		return err
	}
	fmt.Printf("Selected account %s\n", userID)
	return nil
}
