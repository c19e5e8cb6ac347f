package model

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleFree  UserRole = "free"
	UserRoleVIP   UserRole = "vip"
	UserRoleGold  UserRole = "gold"
	UserRoleAdmin UserRole = "admin"
)

// ValidRole reports whether raw is one of the four stored role values.
func ValidRole(raw string) bool {
	switch UserRole(raw) {
	case UserRoleFree, UserRoleVIP, UserRoleGold, UserRoleAdmin:
		return true
	}
	return false
}

// roleRank orders the tiers so redemption can raise a role but never lower it.
func (r UserRole) Rank() int {
	switch r {
	case UserRoleAdmin:
		return 3
	case UserRoleGold:
		return 2
	case UserRoleVIP:
		return 1
	default:
		return 0
	}
}

type User struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Role             UserRole   `db:"role" json:"role"`
	VIPUntil         *time.Time `db:"vip_until" json:"vip_until,omitempty"`
	VIPActive        *bool      `db:"vip_active" json:"vip_active,omitempty"`
	TelegramID       int64      `db:"telegram_id" json:"telegram_id"`
	TelegramUsername *string    `db:"telegram_username" json:"telegram_username,omitempty"`
	Tag              *string    `db:"tag" json:"tag,omitempty"`
	AssignedUser     *string    `db:"assigned_user" json:"assigned_user,omitempty"`
	Note             *string    `db:"note" json:"note,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}
