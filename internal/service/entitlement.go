package service

import (
	"time"

	"resale-hub/internal/model"
)

// Entitlement is the effective tier derived from a user snapshot. It is
// computed, never stored: vip_until crossing "now" is a silent transition
// that is only discovered by re-resolving.
type Entitlement struct {
	Role     model.UserRole `json:"role"`
	IsAdmin  bool           `json:"is_admin"`
	IsVip    bool           `json:"is_vip"`
	IsGold   bool           `json:"is_gold"`
	VipUntil *time.Time     `json:"vip_until,omitempty"`
}

// Resolve is the single source of tier truth. Every privileged check goes
// through here rather than re-deriving the boolean logic at the call site.
//
// admin short-circuits everything; gold implies vip; an explicit vip_active
// override or an unexpired vip_until grants vip to any role.
func Resolve(user *model.User, now time.Time) Entitlement {
	if user == nil {
		return Entitlement{Role: model.UserRoleFree}
	}

	ent := Entitlement{
		Role:     user.Role,
		VipUntil: user.VIPUntil,
	}

	ent.IsAdmin = user.Role == model.UserRoleAdmin
	ent.IsGold = user.Role == model.UserRoleGold

	switch {
	case ent.IsAdmin:
		ent.IsVip = true
	case user.Role == model.UserRoleVIP || user.Role == model.UserRoleGold:
		ent.IsVip = true
	case user.VIPActive != nil && *user.VIPActive:
		ent.IsVip = true
	case user.VIPUntil != nil && user.VIPUntil.After(now):
		ent.IsVip = true
	}

	return ent
}
