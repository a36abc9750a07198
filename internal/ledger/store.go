package ledger

import (
	"context"
	"fmt"
	"regexp"
)

// Account is the persisted credit record of one user.
type Account struct {
	User    string  `json:"user"`
	Credits float64 `json:"credits"`
}

// Store persists whole records; every save rewrites the full document.
type Store interface {
	// LoadAccount reports false when the user has no record yet.
	LoadAccount(ctx context.Context, user string) (Account, bool, error)
	SaveAccount(ctx context.Context, acct Account) error
	// LoadUsage returns an empty log when none exists.
	LoadUsage(ctx context.Context, user string) ([]UsageRecord, error)
	SaveUsage(ctx context.Context, user string, records []UsageRecord) error
	DeleteUsage(ctx context.Context, user string) error
}

var userPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateUser checks that a user id is safe to embed in file names and keys.
func ValidateUser(user string) error {
	if !userPattern.MatchString(user) {
		return fmt.Errorf("invalid user id %q", user)
	}
	return nil
}
