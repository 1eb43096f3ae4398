package users

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/helpers"
	"github.com/stephnangue/nxauth/service"
	"github.com/stephnangue/nxauth/storage"
	"github.com/stephnangue/nxauth/users"
)

var (
	ForgetCmd = &cobra.Command{
		Use:           "forget <user-id>",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		Short:         "Removes an account and its cached credentials",
		Long: `
Usage: nxauth users forget <user-id>

  Removes the stored account, every cached credential set it produced,
  and the per-service indexes pointing back at its session token. The
  session token itself is not revoked with the account authority.

      $ nxauth users forget 0123456789abcdef
`,
		RunE: runForget,
	}
)

func runForget(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := helpers.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	userID := args[0]
	account, err := users.LoadAccount(ctx, rt.Store, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("unknown user %q", userID)
	}
	if err != nil {
		return err
	}

	for _, name := range service.Names() {
		svc, err := helpers.ResolveService(rt, name)
		if err != nil {
			return err
		}
		if err := rt.Manager.Forget(ctx, svc, userID, account.SessionToken); err != nil {
			return fmt.Errorf("failed to drop %s credentials: %w", name, err)
		}
	}

	if err := users.RemoveAccount(ctx, rt.Store, userID); err != nil {
		return err
	}
	rt.Users.Remove(users.KindAccountOIDC, userID)

	selected, err := helpers.SelectedUser(ctx, rt)
	if err != nil {
		return err
	}
	if selected == userID {
		if err := rt.Store.Remove(ctx, storage.SelectedUserKey); err != nil {
			return err
		}
	}

	fmt.Printf("Forgot account %s\n", userID)
	return nil
}
