package goauth

import (
	"context"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// AccountsAdapter wraps a go-auth Users repository so it satisfies the
// AccountRepository interface OTP delivery and login flows consume.
type AccountsAdapter struct {
	repo auth.Users
}

// NewAccountsAdapter builds an AccountsAdapter.
func NewAccountsAdapter(repo auth.Users) *AccountsAdapter {
	return &AccountsAdapter{repo: repo}
}

var _ types.AccountRepository = (*AccountsAdapter)(nil)

// GetByID loads an account by UUID.
func (a *AccountsAdapter) GetByID(ctx context.Context, id uuid.UUID) (*types.Account, error) {
	record, err := a.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return toAccount(record), nil
}

// GetByIdentifier loads an account using email/username/UUID.
func (a *AccountsAdapter) GetByIdentifier(ctx context.Context, identifier string) (*types.Account, error) {
	record, err := a.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return toAccount(record), nil
}

func toAccount(user *auth.User) *types.Account {
	if user == nil {
		return nil
	}
	account := &types.Account{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
	}
	// go-auth users carry phone numbers in metadata, not a column.
	if raw, ok := user.Metadata["phone"]; ok {
		if phone, ok := raw.(string); ok {
			account.Phone = phone
		}
	}
	return account
}
