package ledger

import (
	"errors"
	"time"

	"monkeymoney/internal/domain" // Importing domain models

	"github.com/google/uuid" // Reference token generation
	"gorm.io/gorm"           // GORM ORM library
	"gorm.io/gorm/clause"    // Row locking clause
)

// Business rule constants, in whole rupees / percent
const (
	ReferralCommissionPercent = 50   // Referrer share of a first approved deposit
	AdminSharePercent         = 50   // House share of the same deposit, computed independently
	SignupReferralBonus       = 100  // Credited to the referrer at registration
	SignupWelcomeBonus        = 50   // Credited to the referred user at registration
	PremiumUpgradePrice       = 2000 // Price of a purchased premium membership
)

// Engine applies state transitions to deposits and withdrawals and propagates
// balance, membership and referral-commission effects onto user records. Every
// operation runs inside a single database transaction: all effects apply or
// none do.
type Engine struct {
	db *gorm.DB // Database handle
}

// NewEngine returns an Engine backed by the given database
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// forUpdate adds a FOR UPDATE row lock where the dialect supports it.
// SQLite serializes writers on its own and rejects the clause.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// notFound converts gorm's missing-record error into the engine sentinel
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// RequestDeposit creates a pending deposit for the user. No balance effect:
// the amount is credited only on approval.
func (e *Engine) RequestDeposit(userID uint, amount int64, method, accountNumber string) (*domain.Deposit, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var dep domain.Deposit
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var user domain.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		dep = domain.Deposit{
			UserID:        user.ID,
			Amount:        amount,
			Method:        method,
			AccountNumber: accountNumber,
			Reference:     uuid.NewString(),
			Status:        domain.StatusPending,
		}
		return tx.Create(&dep).Error
	})
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

// RequestWithdrawal creates a pending withdrawal and debits the amount from
// the user immediately (hold semantics). The hold is refunded if the
// withdrawal is later rejected.
func (e *Engine) RequestWithdrawal(userID uint, amount int64, method, accountNumber, accountTitle string) (*domain.Withdrawal, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var wd domain.Withdrawal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var user domain.User
		if err := forUpdate(tx).First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		if user.Balance < amount {
			return ErrInsufficientBalance
		}
		user.Balance -= amount // Hold the amount until the admin decides
		if err := tx.Save(&user).Error; err != nil {
			return err
		}
		wd = domain.Withdrawal{
			UserID:        user.ID,
			Amount:        amount,
			Method:        method,
			AccountNumber: accountNumber,
			AccountTitle:  accountTitle,
			Reference:     uuid.NewString(),
			Status:        domain.StatusPending,
		}
		return tx.Create(&wd).Error
	})
	if err != nil {
		return nil, err
	}
	return &wd, nil
}

// ApproveDeposit moves a pending deposit to approved, credits the owning
// user, and applies the premium-unlock rule on the user's first qualifying
// approval: membership becomes premium and, if the user was referred, the
// referrer earns a commission. The unlock is gated on membership itself, so
// it fires at most once per user regardless of approval order.
func (e *Engine) ApproveDeposit(depositID uint) (*domain.Deposit, error) {
	var dep domain.Deposit
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&dep, depositID).Error; err != nil {
			return notFound(err)
		}
		if dep.Status != domain.StatusPending {
			return ErrInvalidState
		}
		now := time.Now()
		dep.Status = domain.StatusApproved
		dep.ApprovedAt = &now
		if err := tx.Save(&dep).Error; err != nil {
			return err
		}

		var user domain.User
		if err := forUpdate(tx).First(&user, dep.UserID).Error; err != nil {
			return notFound(err)
		}
		user.Balance += dep.Amount

		// First approved deposit unlocks premium. Membership is monotonic:
		// an already-premium user is never re-processed.
		if user.Membership != domain.MembershipPremium {
			user.Membership = domain.MembershipPremium
			user.PremiumUnlockedAt = &now

			if user.ReferredBy != "" {
				if err := e.payReferralCommission(tx, &user, &dep, now); err != nil {
					return err
				}
			}
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

// payReferralCommission credits the referrer for a referred user's first
// approved deposit. The referrer share and the house share are each
// floor(amount * 50%), computed independently; on odd amounts the two shares
// sum to one rupee less than the deposit. A dangling referral code is not an
// error: the unlock still happens, only the commission is skipped.
func (e *Engine) payReferralCommission(tx *gorm.DB, user *domain.User, dep *domain.Deposit, now time.Time) error {
	var referrer domain.User
	err := forUpdate(tx).Where("referral_code = ?", user.ReferredBy).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	commission := dep.Amount * ReferralCommissionPercent / 100
	adminShare := dep.Amount * AdminSharePercent / 100

	referrer.Balance += commission
	referrer.TotalReferralEarnings += commission
	referrer.TotalReferrals++
	if err := tx.Save(&referrer).Error; err != nil {
		return err
	}

	record := domain.CommissionRecord{
		ReferrerID: referrer.ID,
		FromUser:   user.FullName,
		FromUserID: user.ID,
		Amount:     commission,
		AdminShare: adminShare,
		DepositID:  dep.ID,
		CreatedAt:  now,
	}
	return tx.Create(&record).Error
}

// RejectDeposit moves a pending deposit to rejected. No balance effect: the
// amount was never credited.
func (e *Engine) RejectDeposit(depositID uint) (*domain.Deposit, error) {
	var dep domain.Deposit
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&dep, depositID).Error; err != nil {
			return notFound(err)
		}
		if dep.Status != domain.StatusPending {
			return ErrInvalidState
		}
		now := time.Now()
		dep.Status = domain.StatusRejected
		dep.RejectedAt = &now
		return tx.Save(&dep).Error
	})
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

// ApproveWithdrawal moves a pending withdrawal to approved. No balance
// effect: the amount was held at request time.
func (e *Engine) ApproveWithdrawal(withdrawalID uint) (*domain.Withdrawal, error) {
	var wd domain.Withdrawal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&wd, withdrawalID).Error; err != nil {
			return notFound(err)
		}
		if wd.Status != domain.StatusPending {
			return ErrInvalidState
		}
		now := time.Now()
		wd.Status = domain.StatusApproved
		wd.ApprovedAt = &now
		return tx.Save(&wd).Error
	})
	if err != nil {
		return nil, err
	}
	return &wd, nil
}

// RejectWithdrawal moves a pending withdrawal to rejected and refunds the
// held amount to the owning user.
func (e *Engine) RejectWithdrawal(withdrawalID uint) (*domain.Withdrawal, error) {
	var wd domain.Withdrawal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&wd, withdrawalID).Error; err != nil {
			return notFound(err)
		}
		if wd.Status != domain.StatusPending {
			return ErrInvalidState
		}
		now := time.Now()
		wd.Status = domain.StatusRejected
		wd.RejectedAt = &now
		if err := tx.Save(&wd).Error; err != nil {
			return err
		}
		// Reverse the hold taken at request time
		return tx.Model(&domain.User{}).
			Where("id = ?", wd.UserID).
			Update("balance", gorm.Expr("balance + ?", wd.Amount)).Error
	})
	if err != nil {
		return nil, err
	}
	return &wd, nil
}

// UpgradeMembership lets a user buy premium membership out of their balance
func (e *Engine) UpgradeMembership(userID uint) (*domain.User, error) {
	var user domain.User
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		if user.Membership == domain.MembershipPremium {
			return ErrInvalidState
		}
		if user.Balance < PremiumUpgradePrice {
			return ErrInsufficientBalance
		}
		now := time.Now()
		user.Balance -= PremiumUpgradePrice
		user.Membership = domain.MembershipPremium
		user.PremiumUnlockedAt = &now
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EditUserBalance is the administrative override: it sets the balance
// directly and records a BalanceAdjustment in the same transaction so the
// edit leaves a trace.
func (e *Engine) EditUserBalance(userID, adminID uint, newBalance int64, note string) (*domain.User, error) {
	if newBalance < 0 {
		return nil, ErrInvalidAmount
	}
	var user domain.User
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		adj := domain.BalanceAdjustment{
			UserID:     user.ID,
			AdminID:    adminID,
			OldBalance: user.Balance,
			NewBalance: newBalance,
			Note:       note,
		}
		if err := tx.Create(&adj).Error; err != nil {
			return err
		}
		user.Balance = newBalance
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
