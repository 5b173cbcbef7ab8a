package accounts

import "time"

// Account represents a registered member. Roles holds the role names
// currently attached through the account/role join; it may be empty after
// admin action, in which case the account has zero permissions.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
