package model

import "time"

// LoginCode is the single active login code for a telegram identity.
// The table is keyed by telegram_id, so at most one row, and therefore at
// most one live code, can exist per user. Expiry is derived from ExpiresAt
// at read time; rows are never consumed, only refreshed once expired.
type LoginCode struct {
	TelegramID int64      `db:"telegram_id" json:"telegram_id"`
	Code       string     `db:"code" json:"code"`
	IssuedAt   time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// Live reports whether the code is still inside its validity window.
func (c *LoginCode) Live(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}
