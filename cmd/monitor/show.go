package monitor

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/helpers"
	"github.com/stephnangue/nxauth/monitor"
	"github.com/stephnangue/nxauth/storage"
)

var (
	showUser string

	ShowCmd = &cobra.Command{
		Use:           "show",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Shows the last recorded presence snapshot",
		Long: `
Usage: nxauth monitor show [--user <id>]

  Prints the friend presence snapshot the monitor last persisted for a
  user. Without --user the selected account is used.

      $ nxauth monitor show
`,
		RunE: runShow,
	}
)

func init() {
	ShowCmd.Flags().StringVar(&showUser, "user", "", "The user ID to show (defaults to the selected account)")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := helpers.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	userID := showUser
	if userID == "" {
		userID, err = helpers.SelectedUser(ctx, rt)
		if err != nil {
			return err
		}
		if userID == "" {
			return fmt.Errorf("no user selected: pass --user or select one with 'nxauth users select'")
		}
	}

	var snapshot monitor.Snapshot
	err = storage.GetJSON(ctx, rt.Store, storage.PresenceKey(userID), &snapshot)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Printf("No snapshot recorded for %s, run 'nxauth monitor presence' first\n", userID)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot for %s, fetched %s\n\n", snapshot.UserID, helpers.FormatTime(snapshot.FetchedAt))

	headers := []string{"Friend", "State", "Game"}
	var data [][]any
	for _, friend := range snapshot.Friends {
		data = append(data, []any{friend.Name, friend.State, friend.GameName})
	}
	helpers.PrintTable(headers, data)
	return nil
}
