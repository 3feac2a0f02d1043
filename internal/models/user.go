package models

import "time"

// Roles a user can hold.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Swap preferences shown on a profile.
const (
	PreferenceSwap = "swap"
	PreferenceSale = "sale"
	PreferenceBoth = "both"
)

// User represents a user account in the system.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"` // Never expose this to the client
	Role           string     `json:"role"`
	City           string     `json:"city"`
	Bio            string     `json:"bio"`
	SwapPreference string     `json:"swapPreference"`
	CreatedAt      time.Time  `json:"createdAt"`
	DeactivatedAt  *time.Time `json:"deactivatedAt,omitempty"`
}

// IsActive reports whether the account has not been deactivated.
func (u User) IsActive() bool {
	return u.DeactivatedAt == nil
}

// PublicProfile is what other users get to see.
type PublicProfile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	City           string    `json:"city"`
	Bio            string    `json:"bio"`
	SwapPreference string    `json:"swapPreference"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Public strips private fields from the user.
func (u User) Public() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		City:           u.City,
		Bio:            u.Bio,
		SwapPreference: u.SwapPreference,
		CreatedAt:      u.CreatedAt,
	}
}
