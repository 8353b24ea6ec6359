package domain

import "time"

// CommissionRecord Model. Append-only: one row per qualifying referral event,
// owned by the referrer.
type CommissionRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`              // Primary key
	ReferrerID uint      `gorm:"index;not null" json:"referrer_id"` // User receiving the commission
	FromUser   string    `json:"from_user"`                         // Referred user's display name
	FromUserID uint      `gorm:"index" json:"from_user_id"`         // Referred user
	Amount     int64     `gorm:"not null" json:"amount"`            // Referrer's share
	AdminShare int64     `gorm:"not null" json:"admin_share"`       // House share of the same deposit
	DepositID  uint      `gorm:"index" json:"deposit_id"`           // Deposit that triggered the commission
	CreatedAt  time.Time `json:"created_at"`                        // Event timestamp
}

// BalanceAdjustment Model. Written alongside every direct admin balance edit
// so the override leaves a trace.
type BalanceAdjustment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`          // Primary key
	UserID     uint      `gorm:"index;not null" json:"user_id"` // User whose balance was edited
	AdminID    uint      `gorm:"index" json:"admin_id"`         // Admin who performed the edit
	OldBalance int64     `json:"old_balance"`                   // Balance before the edit
	NewBalance int64     `json:"new_balance"`                   // Balance after the edit
	Note       string    `json:"note"`                          // Optional reason
	CreatedAt  time.Time `json:"created_at"`                    // Event timestamp
}
