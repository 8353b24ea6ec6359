package domain

import "time"

// Membership levels
const (
	MembershipBasic   = "basic"   // Default membership
	MembershipPremium = "premium" // Unlocked by first approved deposit or purchased
)

// User Model
type User struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`                     // Primary key
	Username              string     `gorm:"unique;not null" json:"username"`          // Unique username
	FullName              string     `gorm:"not null" json:"full_name"`                // Display name
	Email                 string     `gorm:"unique;not null" json:"email"`             // Unique email
	Phone                 string     `json:"phone"`                                    // Optional phone number
	Password              string     `gorm:"not null" json:"-"`                        // Hashed password, never serialized
	Role                  string     `gorm:"default:user" json:"role"`                 // Role: user or admin
	Balance               int64      `gorm:"not null;default:0" json:"balance"`        // Balance in whole rupees
	Membership            string     `gorm:"default:basic" json:"membership"`          // Membership level
	ReferralCode          string     `gorm:"uniqueIndex" json:"referral_code"`         // Code this user shares
	ReferredBy            string     `gorm:"index" json:"referred_by"`                 // Referral code of the referrer, if any
	TotalReferrals        int        `gorm:"default:0" json:"total_referrals"`         // Qualifying referrals so far
	TotalReferralEarnings int64      `gorm:"default:0" json:"total_referral_earnings"` // Accumulated commission
	PremiumUnlockedAt     *time.Time `json:"premium_unlocked_at"`                      // Set once, on the unlock event
	LastLogin             *time.Time `json:"last_login"`                               // Updated on each login
	IsActive              bool       `gorm:"default:true" json:"is_active"`            // Deactivated accounts cannot log in
	CreatedAt             time.Time  `json:"created_at"`                               // Registration timestamp
}
