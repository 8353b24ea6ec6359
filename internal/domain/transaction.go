package domain

import "time"

// Transaction statuses. Transitions are one-way: pending -> approved or
// pending -> rejected. Nothing leaves a terminal status.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Deposit Model. Amount is credited to the user only on approval.
type Deposit struct {
	ID            uint       `gorm:"primaryKey" json:"id"`                // Primary key
	UserID        uint       `gorm:"index;not null" json:"user_id"`       // Owning user
	Amount        int64      `gorm:"not null" json:"amount"`              // Amount in whole rupees
	Method        string     `json:"method"`                              // Payment method
	AccountNumber string     `json:"account_number"`                      // Account the funds came from
	Reference     string     `gorm:"uniqueIndex" json:"reference"`        // Opaque reference token
	Status        string     `gorm:"default:pending;index" json:"status"` // pending, approved or rejected
	CreatedAt     time.Time  `json:"created_at"`                          // Request timestamp
	ApprovedAt    *time.Time `json:"approved_at"`                         // Set on approval
	RejectedAt    *time.Time `json:"rejected_at"`                         // Set on rejection
}

// Withdrawal Model. Amount is held (debited) at request time and refunded
// on rejection; approval therefore has no balance effect.
type Withdrawal struct {
	ID            uint       `gorm:"primaryKey" json:"id"`                // Primary key
	UserID        uint       `gorm:"index;not null" json:"user_id"`       // Owning user
	Amount        int64      `gorm:"not null" json:"amount"`              // Held amount in whole rupees
	Method        string     `json:"method"`                              // Payout method
	AccountNumber string     `json:"account_number"`                      // Destination account number
	AccountTitle  string     `json:"account_title"`                       // Destination account holder name
	Reference     string     `gorm:"uniqueIndex" json:"reference"`        // Opaque reference token
	Status        string     `gorm:"default:pending;index" json:"status"` // pending, approved or rejected
	CreatedAt     time.Time  `json:"created_at"`                          // Request timestamp
	ApprovedAt    *time.Time `json:"approved_at"`                         // Set on approval
	RejectedAt    *time.Time `json:"rejected_at"`                         // Set on rejection
}
