package users

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/helpers"
	"github.com/stephnangue/nxauth/session"
	"github.com/stephnangue/nxauth/storage"
	"github.com/stephnangue/nxauth/users"
)

var (
	addToken string

	AddCmd = &cobra.Command{
		Use:           "add",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Adds a Nintendo account from a session token",
		Long: `
Usage: nxauth users add --token <session-token>

  Stores the account behind a session token. The account is identified
  by the token's subject claim. The first account added becomes the
  selected account.

      $ nxauth users add --token eyJhbGciOi...
`,
		RunE: runAdd,
	}
)

func init() {
	AddCmd.Flags().StringVar(&addToken, "token", "", "The session token to add the account from")
	AddCmd.MarkFlagRequired("token")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := helpers.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	token, err := session.Parse(addToken)
	if err != nil {
		return fmt.Errorf("cannot add account: %w", err)
	}
	if token.Subject == "" {
		return &session.InvalidTokenError{Reason: "token carries no subject claim"}
	}
	now := time.Now()
	if !token.ExpiresAt.IsZero() && !token.ExpiresAt.After(now) {
		return &session.InvalidTokenError{Reason: "token is expired, obtain a new session token"}
	}

	account := &users.Account{
		UserID:       token.Subject,
		SessionToken: token.Raw,
		AddedAt:      now.UnixMilli(),
	}
	if existing, err := users.LoadAccount(ctx, rt.Store, token.Subject); err == nil {
		// Re-adding replaces the token but keeps the profile fields
		account.Nickname = existing.Nickname
		account.Country = existing.Country
		account.AddedAt = existing.AddedAt
		account.UpdatedAt = now.UnixMilli()
	}
	if err := users.SaveAccount(ctx, rt.Store, account); err != nil {
		return err
	}

	selected, err := helpers.SelectedUser(ctx, rt)
	if err != nil {
		return err
	}
	if selected == "" {
		if err := storage.SetJSON(ctx, rt.Store, storage.SelectedUserKey, token.Subject); err != nil {
			return err
		}
		selected = token.Subject
	}

	fmt.Printf("Added account %s", token.Subject)
	if selected == token.Subject {
		fmt.Print(" (selected)")
	}
	fmt.Println()
	return nil
}
