package users

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/helpers"
	"github.com/stephnangue/nxauth/config"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/users"
)

var (
	listRefresh bool

	ListCmd = &cobra.Command{
		Use:           "list",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Lists the stored Nintendo accounts",
		Long: `
Usage: nxauth users list [--refresh]

  Lists the stored accounts with their profile fields. Profile fields
  are filled from the last refresh; pass --refresh to fetch them from
  the account authority first.

      $ nxauth users list
      $ nxauth users list --refresh
`,
		RunE: runList,
	}
)

func init() {
	ListCmd.Flags().BoolVar(&listRefresh, "refresh", false, "Fetch profiles from the account authority before listing")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := helpers.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	accounts, err := users.ListAccounts(ctx, rt.Store)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts stored. Add one with 'nxauth users add --token <session-token>'")
		return nil
	}

	if listRefresh {
		if err := refreshProfiles(cmd, rt, accounts); err != nil {
			return err
		}
	}

	selected, err := helpers.SelectedUser(ctx, rt)
	if err != nil {
		return err
	}

	headers := []string{"User ID", "Nickname", "Country", "Added", "Selected"}
	var data [][]any
	for _, account := range accounts {
		mark := ""
		if account.UserID == selected {
			mark = "*"
		}
		data = append(data, []any{
			account.UserID,
			account.Nickname,
			account.Country,
			helpers.FormatTime(account.AddedAt),
			mark,
		})
	}
	helpers.PrintTable(headers, data)
	return nil
}

func refreshProfiles(cmd *cobra.Command, rt *config.Runtime, accounts []*users.Account) error {
	ctx := cmd.Context()

	now := time.Now()
	for _, account := range accounts {
		entity, err := rt.Users.Get(ctx, users.KindAccountOIDC, account.UserID)
		if err != nil {
			rt.Log.Warn("skipping account that cannot authenticate",
				logger.String("user_id", account.UserID), logger.Err(err))
			continue
		}
		oidc := entity.(*users.AccountOIDC)
		if err := users.RefreshProfile(ctx, rt.Store, account, oidc, now); err != nil {
			return fmt.Errorf("failed to refresh profile for %s: %w", account.UserID, err)
		}
	}
	return nil
}
