package helpers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/stephnangue/nxauth/config"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/service"
	"github.com/stephnangue/nxauth/session"
	"github.com/stephnangue/nxauth/storage"
	"github.com/stephnangue/nxauth/users"
)

// OpenRuntime builds the process runtime from the config file named by
// the NXAUTH_CONFIG environment variable. No file means defaults: file
// storage under the home directory, info logging.
func OpenRuntime(ctx context.Context) (*config.Runtime, error) {
	cfg, err := config.LoadConfig(os.Getenv("NXAUTH_CONFIG"))
	if err != nil {
		return nil, err
	}
	return config.NewRuntime(ctx, cfg)
}

// ResolveService looks a service descriptor up by name, applying any
// endpoint override from the config
func ResolveService(rt *config.Runtime, name string) (credential.Service, error) {
	return service.New(name, rt.Config.ServiceAddress(name))
}

// SelectedUser returns the user ID the CLI currently operates on, or ""
// when none was selected
func SelectedUser(ctx context.Context, rt *config.Runtime) (string, error) {
	var userID string
	err := storage.GetJSON(ctx, rt.Store, storage.SelectedUserKey, &userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ResolveSessionToken turns the --user/--token flags into a parsed
// session token. Precedence: an explicit raw token wins, then the named
// user's stored token, then the selected user's. Errors carry guidance
// because a missing token usually means "run users add" first.
func ResolveSessionToken(ctx context.Context, rt *config.Runtime, userFlag, tokenFlag string) (*session.Token, error) {
	if tokenFlag != "" {
		return session.Parse(tokenFlag)
	}

	userID := userFlag
	if userID == "" {
		selected, err := SelectedUser(ctx, rt)
		if err != nil {
			return nil, err
		}
		if selected == "" {
			return nil, fmt.Errorf("no user selected: add one with 'nxauth users add --token <session-token>' or pass --user/--token")
		}
		userID = selected
	}

	account, err := users.LoadAccount(ctx, rt.Store, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("unknown user %q: add it with 'nxauth users add --token <session-token>'", userID)
	}
	if err != nil {
		return nil, err
	}
	return session.Parse(account.SessionToken)
}

// FormatTime renders an epoch-millisecond timestamp for table output,
// "-" when unset
func FormatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}
