package users

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/stephnangue/nxauth/storage"
)

// Account is the stored record for one Nintendo Account: the session
// token it was added with plus the profile fields last fetched for it.
// Profile fields are best effort and may be empty until a refresh.
type Account struct {
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token"`
	Nickname     string `json:"nickname,omitempty"`
	Country      string `json:"country,omitempty"`
	AddedAt      int64  `json:"added_at"`   // epoch ms
	UpdatedAt    int64  `json:"updated_at"` // epoch ms
}

// SaveAccount persists an account record
func SaveAccount(ctx context.Context, store storage.Storage, account *Account) error {
	return storage.SetJSON(ctx, store, storage.AccountKey(account.UserID), account)
}

// LoadAccount reads the account record for a user ID. Returns
// storage.ErrNotFound when the user was never added.
func LoadAccount(ctx context.Context, store storage.Storage, userID string) (*Account, error) {
	var account Account
	if err := storage.GetJSON(ctx, store, storage.AccountKey(userID), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// RemoveAccount deletes the account record for a user ID
func RemoveAccount(ctx context.Context, store storage.Storage, userID string) error {
	return store.Remove(ctx, storage.AccountKey(userID))
}

// ListAccounts returns all stored accounts sorted by user ID
func ListAccounts(ctx context.Context, store storage.Storage) ([]*Account, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []*Account
	for _, key := range keys {
		if !strings.HasPrefix(key, storage.AccountKeyPrefix) {
			continue
		}
		var account Account
		if err := storage.GetJSON(ctx, store, key, &account); err != nil {
			return nil, err
		}
		accounts = append(accounts, &account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].UserID < accounts[j].UserID
	})
	return accounts, nil
}

// RefreshProfile fetches the account profile through the OIDC wrapper
// and folds the result into the stored record
func RefreshProfile(ctx context.Context, store storage.Storage, account *Account, oidc *AccountOIDC, now time.Time) error {
	profile, err := oidc.GetProfile(ctx)
	if err != nil {
		return err
	}
	account.Nickname = profile.Nickname
	account.Country = profile.Country
	account.UpdatedAt = now.UnixMilli()
	return SaveAccount(ctx, store, account)
}
