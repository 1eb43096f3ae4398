package credential

import "errors"

var (
	// ErrNoStoredToken is returned when a user ID cannot be resolved to
	// a stored session token through the secondary index
	ErrNoStoredToken = errors.New("no stored session token for user")

	// ErrNoSelectedUser is returned when neither a user nor a token was
	// given and no selected-user pointer exists in the store
	ErrNoSelectedUser = errors.New("no user selected; run \"nxauth users select\" or pass --user/--token")
)
