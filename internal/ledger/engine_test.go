package ledger

import (
	"testing"

	"monkeymoney/internal/domain"
	"monkeymoney/internal/utils"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestEngine opens an in-memory database with the full schema
func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{},
		&domain.Deposit{},
		&domain.Withdrawal{},
		&domain.CommissionRecord{},
		&domain.BalanceAdjustment{},
	))
	return NewEngine(db), db
}

// createUser inserts a user with a fresh referral code
func createUser(t *testing.T, db *gorm.DB, username, referredBy string) *domain.User {
	t.Helper()
	user := domain.User{
		Username:     username,
		FullName:     username + " Test",
		Email:        username + "@example.com",
		Password:     "hashed",
		Membership:   domain.MembershipBasic,
		ReferralCode: utils.GenerateReferralCode(username),
		ReferredBy:   referredBy,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

// reload fetches the current state of a user row
func reload(t *testing.T, db *gorm.DB, id uint) *domain.User {
	t.Helper()
	var user domain.User
	require.NoError(t, db.First(&user, id).Error)
	return &user
}

func TestApproveDepositCreditsBalanceAndUnlocksPremium(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "alice", "")

	dep, err := eng.RequestDeposit(user.ID, 1000, "bank", "PK00123")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, dep.Status)
	assert.NotEmpty(t, dep.Reference)

	approved, err := eng.ApproveDeposit(dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	got := reload(t, db, user.ID)
	assert.Equal(t, int64(1000), got.Balance)
	assert.Equal(t, domain.MembershipPremium, got.Membership)
	require.NotNil(t, got.PremiumUnlockedAt)
	// No referrer, so no commission anywhere
	var commissions int64
	require.NoError(t, db.Model(&domain.CommissionRecord{}).Count(&commissions).Error)
	assert.Zero(t, commissions)
}

func TestApproveDepositPaysReferralCommission(t *testing.T) {
	eng, db := newTestEngine(t)
	referrer := createUser(t, db, "alice", "")
	referred := createUser(t, db, "bob", referrer.ReferralCode)

	dep, err := eng.RequestDeposit(referred.ID, 2000, "easypaisa", "0311")
	require.NoError(t, err)
	_, err = eng.ApproveDeposit(dep.ID)
	require.NoError(t, err)

	gotReferred := reload(t, db, referred.ID)
	assert.Equal(t, int64(2000), gotReferred.Balance)
	assert.Equal(t, domain.MembershipPremium, gotReferred.Membership)

	gotReferrer := reload(t, db, referrer.ID)
	assert.Equal(t, int64(1000), gotReferrer.Balance) // floor(2000 * 50%)
	assert.Equal(t, int64(1000), gotReferrer.TotalReferralEarnings)
	assert.Equal(t, 1, gotReferrer.TotalReferrals)

	var record domain.CommissionRecord
	require.NoError(t, db.Where("referrer_id = ?", referrer.ID).First(&record).Error)
	assert.Equal(t, int64(1000), record.Amount)
	assert.Equal(t, int64(1000), record.AdminShare)
	assert.Equal(t, referred.ID, record.FromUserID)
	assert.Equal(t, dep.ID, record.DepositID)
}

func TestCommissionFloorsOddAmounts(t *testing.T) {
	eng, db := newTestEngine(t)
	referrer := createUser(t, db, "alice", "")
	referred := createUser(t, db, "bob", referrer.ReferralCode)

	dep, err := eng.RequestDeposit(referred.ID, 1001, "bank", "PK1")
	require.NoError(t, err)
	_, err = eng.ApproveDeposit(dep.ID)
	require.NoError(t, err)

	// Both shares floor independently; one rupee vanishes on odd amounts
	var record domain.CommissionRecord
	require.NoError(t, db.Where("referrer_id = ?", referrer.ID).First(&record).Error)
	assert.Equal(t, int64(500), record.Amount)
	assert.Equal(t, int64(500), record.AdminShare)
	assert.Equal(t, int64(500), reload(t, db, referrer.ID).Balance)
}

func TestPremiumUnlockFiresOnce(t *testing.T) {
	eng, db := newTestEngine(t)
	referrer := createUser(t, db, "alice", "")
	referred := createUser(t, db, "bob", referrer.ReferralCode)

	first, err := eng.RequestDeposit(referred.ID, 1000, "bank", "PK1")
	require.NoError(t, err)
	second, err := eng.RequestDeposit(referred.ID, 5000, "bank", "PK1")
	require.NoError(t, err)

	_, err = eng.ApproveDeposit(first.ID)
	require.NoError(t, err)
	unlockedAt := reload(t, db, referred.ID).PremiumUnlockedAt
	require.NotNil(t, unlockedAt)

	_, err = eng.ApproveDeposit(second.ID)
	require.NoError(t, err)

	gotReferred := reload(t, db, referred.ID)
	assert.Equal(t, int64(6000), gotReferred.Balance)
	assert.Equal(t, unlockedAt.Unix(), gotReferred.PremiumUnlockedAt.Unix())

	// Only the first approval pays commission
	gotReferrer := reload(t, db, referrer.ID)
	assert.Equal(t, int64(500), gotReferrer.Balance)
	assert.Equal(t, 1, gotReferrer.TotalReferrals)
	var commissions int64
	require.NoError(t, db.Model(&domain.CommissionRecord{}).Count(&commissions).Error)
	assert.Equal(t, int64(1), commissions)
}

func TestTerminalDepositsRejectFurtherTransitions(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "alice", "")

	dep, err := eng.RequestDeposit(user.ID, 300, "bank", "PK1")
	require.NoError(t, err)
	_, err = eng.ApproveDeposit(dep.ID)
	require.NoError(t, err)

	// Approved is terminal in both directions
	_, err = eng.ApproveDeposit(dep.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = eng.RejectDeposit(dep.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// A double approval must not double-credit
	assert.Equal(t, int64(300), reload(t, db, user.ID).Balance)
}

func TestRejectDepositHasNoBalanceEffect(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "alice", "")

	dep, err := eng.RequestDeposit(user.ID, 900, "bank", "PK1")
	require.NoError(t, err)
	rejected, err := eng.RejectDeposit(dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedAt)

	got := reload(t, db, user.ID)
	assert.Zero(t, got.Balance)
	assert.Equal(t, domain.MembershipBasic, got.Membership)

	// Rejected is terminal too
	_, err = eng.ApproveDeposit(dep.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApproveDepositNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.ApproveDeposit(12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithdrawalHoldAndRefund(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "carol", "")
	require.NoError(t, db.Model(user).Update("balance", 1000).Error)

	wd, err := eng.RequestWithdrawal(user.ID, 500, "bank", "PK2", "Carol Test")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, wd.Status)
	// The hold is taken immediately
	assert.Equal(t, int64(500), reload(t, db, user.ID).Balance)

	rejected, err := eng.RejectWithdrawal(wd.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedAt)
	// The refund restores exactly the held amount
	assert.Equal(t, int64(1000), reload(t, db, user.ID).Balance)
}

func TestApproveWithdrawalHasNoBalanceEffect(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "carol", "")
	require.NoError(t, db.Model(user).Update("balance", 800).Error)

	wd, err := eng.RequestWithdrawal(user.ID, 300, "bank", "PK2", "Carol Test")
	require.NoError(t, err)
	approved, err := eng.ApproveWithdrawal(wd.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	// Balance stays at whatever the hold left
	assert.Equal(t, int64(500), reload(t, db, user.ID).Balance)

	// Terminal afterwards
	_, err = eng.RejectWithdrawal(wd.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWithdrawalInsufficientBalance(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "dave", "")
	require.NoError(t, db.Model(user).Update("balance", 100).Error)

	_, err := eng.RequestWithdrawal(user.ID, 250, "bank", "PK3", "Dave Test")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	// The failed request leaves no trace
	assert.Equal(t, int64(100), reload(t, db, user.ID).Balance)
	var count int64
	require.NoError(t, db.Model(&domain.Withdrawal{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRequestValidation(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "erin", "")

	_, err := eng.RequestDeposit(user.ID, 0, "bank", "PK4")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = eng.RequestDeposit(user.ID, -50, "bank", "PK4")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = eng.RequestWithdrawal(user.ID, 0, "bank", "PK4", "Erin Test")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = eng.RequestDeposit(999, 100, "bank", "PK4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDanglingReferralCodeSkipsCommission(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "frank", "GONE1234")

	dep, err := eng.RequestDeposit(user.ID, 1000, "bank", "PK5")
	require.NoError(t, err)
	_, err = eng.ApproveDeposit(dep.ID)
	require.NoError(t, err)

	// The unlock still happens even though the code resolves to nobody
	got := reload(t, db, user.ID)
	assert.Equal(t, domain.MembershipPremium, got.Membership)
	assert.Equal(t, int64(1000), got.Balance)
	var commissions int64
	require.NoError(t, db.Model(&domain.CommissionRecord{}).Count(&commissions).Error)
	assert.Zero(t, commissions)
}

func TestUpgradeMembershipPurchase(t *testing.T) {
	eng, db := newTestEngine(t)
	user := createUser(t, db, "grace", "")

	// Not enough funds
	_, err := eng.UpgradeMembership(user.ID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, db.Model(user).Update("balance", PremiumUpgradePrice+500).Error)
	upgraded, err := eng.UpgradeMembership(user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipPremium, upgraded.Membership)
	assert.Equal(t, int64(500), upgraded.Balance)
	require.NotNil(t, upgraded.PremiumUnlockedAt)

	// Already premium
	_, err = eng.UpgradeMembership(user.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEditUserBalanceRecordsAdjustment(t *testing.T) {
	eng, db := newTestEngine(t)
	admin := createUser(t, db, "admin", "")
	user := createUser(t, db, "henry", "")
	require.NoError(t, db.Model(user).Update("balance", 700).Error)

	updated, err := eng.EditUserBalance(user.ID, admin.ID, 1200, "manual correction")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), updated.Balance)

	var adj domain.BalanceAdjustment
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&adj).Error)
	assert.Equal(t, admin.ID, adj.AdminID)
	assert.Equal(t, int64(700), adj.OldBalance)
	assert.Equal(t, int64(1200), adj.NewBalance)
	assert.Equal(t, "manual correction", adj.Note)

	// Zero is a valid balance, negative is not
	_, err = eng.EditUserBalance(user.ID, admin.ID, 0, "")
	require.NoError(t, err)
	assert.Zero(t, reload(t, db, user.ID).Balance)
	_, err = eng.EditUserBalance(user.ID, admin.ID, -1, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = eng.EditUserBalance(4242, admin.ID, 10, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
