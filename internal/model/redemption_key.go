package model

import (
	"time"

	"github.com/google/uuid"
)

type KeyType string

const (
	KeyTypeVIP  KeyType = "vip"
	KeyTypeGold KeyType = "gold"
)

func ValidKeyType(raw string) bool {
	switch KeyType(raw) {
	case KeyTypeVIP, KeyTypeGold:
		return true
	}
	return false
}

// RedemptionKey grants or extends VIP/GOLD tier when redeemed.
// MaxUses == nil means unlimited; ExpiresAt == nil means the key never
// expires on its own.
type RedemptionKey struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Code         string     `db:"code" json:"code"`
	Type         KeyType    `db:"type" json:"type"`
	DurationDays int        `db:"duration_days" json:"duration_days"`
	MaxUses      *int       `db:"max_uses" json:"max_uses,omitempty"`
	UsedCount    int        `db:"used_count" json:"used_count"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Tag          *string    `db:"tag" json:"tag,omitempty"`
	AssignedUser *string    `db:"assigned_user" json:"assigned_user,omitempty"`
	Note         *string    `db:"note" json:"note,omitempty"`
	CreatedBy    uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Depleted reports whether the key has reached its usage limit.
func (k *RedemptionKey) Depleted() bool {
	return k != nil && k.MaxUses != nil && k.UsedCount >= *k.MaxUses
}
