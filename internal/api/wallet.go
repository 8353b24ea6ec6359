package api

import (
	"context"  // Context for Redis operations
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"monkeymoney/internal/domain"     // Importing domain models
	"monkeymoney/internal/ledger"     // Ledger transition engine
	"monkeymoney/internal/middleware" // Context helpers
	"monkeymoney/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// Request struct for deposit requests
type DepositRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"` // Deposit amount in whole rupees
	Method        string `json:"method" binding:"required"`      // Payment method
	AccountNumber string `json:"account_number"`                 // Account the funds came from
}

// Request struct for withdrawal requests
type WithdrawalRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`     // Withdrawal amount in whole rupees
	Method        string `json:"method" binding:"required"`          // Payout method
	AccountNumber string `json:"account_number" binding:"required"`  // Destination account number
	AccountTitle  string `json:"account_title" binding:"required"`   // Destination account holder name
}

// respondLedgerError maps engine sentinel errors to HTTP responses
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"}) // Record id does not resolve
	case errors.Is(err, ledger.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "Transaction is not pending"}) // Terminal record
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"}) // Not enough funds
	case errors.Is(err, ledger.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"}) // Malformed amount
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"}) // Everything else
	}
}

// invalidateUserCache drops the cached wallet view and the first pages of the
// user's history lists (simple version: delete first 5 pages)
func invalidateUserCache(ctx context.Context, rdb *redis.Client, userID uint) {
	id := strconv.Itoa(int(userID))                              // User id as string
	_ = utils.DeleteCache(ctx, rdb, "wallet:user:"+id)           // Wallet view
	_ = utils.DeleteCache(ctx, rdb, "referrals:user:"+id)        // Referral stats
	for i := 1; i <= 5; i++ {
		page := strconv.Itoa(i) // Page number as string
		_ = utils.DeleteCache(ctx, rdb, "deposits:user:"+id+":page:"+page+":size:20")    // Deposit history
		_ = utils.DeleteCache(ctx, rdb, "withdrawals:user:"+id+":page:"+page+":size:20") // Withdrawal history
	}
}

// pageParams reads page/page_size query parameters with bounded defaults
func pageParams(c *gin.Context) (page, pageSize int) {
	page = 1      // Default page number
	pageSize = 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// Check and set page size within limits
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size
		}
	}
	return page, pageSize
}

// GetWalletHandler returns the authenticated user's profile and balance
func GetWalletHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()                               // Context for Redis operations
		cacheKey := "wallet:user:" + strconv.Itoa(int(userID))    // Cache key for the wallet view
		var user domain.User                                      // User struct to hold data
		found, err := utils.GetCache(ctx, rdb, cacheKey, &user)   // Try to get from cache
		if err == nil && found {
			// Return cached wallet view
			c.JSON(http.StatusOK, gin.H{"user": user, "cached": true})
			return
		}
		// If not in cache, fetch from DB
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, user, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, gin.H{"user": user, "cached": false})  // Return the wallet view
	}
}

// RequestDepositHandler files a pending deposit for the authenticated user
func RequestDepositHandler(eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req DepositRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// File the pending deposit through the engine
		dep, err := eng.RequestDeposit(userID, req.Amount, req.Method, req.AccountNumber)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		// Log the request
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,        // User ID
			"deposit_id": dep.ID,        // New deposit ID
			"amount":     dep.Amount,    // Requested amount
			"reference":  dep.Reference, // Opaque reference
		}).Info("Deposit requested")
		invalidateUserCache(context.Background(), rdb, userID) // Drop stale history pages
		c.JSON(http.StatusCreated, gin.H{"message": "Deposit request submitted", "deposit": dep})
	}
}

// RequestWithdrawalHandler files a pending withdrawal, holding the amount
func RequestWithdrawalHandler(eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req WithdrawalRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// File the pending withdrawal through the engine; the hold is taken here
		wd, err := eng.RequestWithdrawal(userID, req.Amount, req.Method, req.AccountNumber, req.AccountTitle)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		// Log the request
		logrus.WithFields(logrus.Fields{
			"user_id":       userID,       // User ID
			"withdrawal_id": wd.ID,        // New withdrawal ID
			"amount":        wd.Amount,    // Held amount
			"reference":     wd.Reference, // Opaque reference
		}).Info("Withdrawal requested")
		invalidateUserCache(context.Background(), rdb, userID) // Balance changed, drop cached views
		c.JSON(http.StatusCreated, gin.H{"message": "Withdrawal request submitted", "withdrawal": wd})
	}
}

// ListDepositsHandler returns the authenticated user's deposit history
func ListDepositsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page, pageSize := pageParams(c) // Pagination parameters
		// Redis cache key
		cacheKey := "deposits:user:" + strconv.Itoa(int(userID)) + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		ctx := context.Background() // Context for Redis operations
		var cached struct {
			Deposits   []domain.Deposit `json:"deposits"`    // List of deposits
			Page       int              `json:"page"`        // Current page
			PageSize   int              `json:"page_size"`   // Page size
			Total      int64            `json:"total"`       // Total deposits
			TotalPages int              `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"deposits":    cached.Deposits,   // Cached deposits
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total deposits
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		var total int64 // Total count for pagination
		if err := db.Model(&domain.Deposit{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count deposits"})
			return
		}
		var deposits []domain.Deposit // Slice to hold deposits
		// Fetch paginated deposits, newest first
		if err := db.Where("user_id = ?", userID).
			Order("created_at desc").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&deposits).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch deposits"})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := gin.H{
			"deposits":    deposits,   // List of deposits
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total deposits
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)                                  // Return deposit history
	}
}

// ListWithdrawalsHandler returns the authenticated user's withdrawal history
func ListWithdrawalsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page, pageSize := pageParams(c) // Pagination parameters
		// Redis cache key
		cacheKey := "withdrawals:user:" + strconv.Itoa(int(userID)) + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		ctx := context.Background() // Context for Redis operations
		var cached struct {
			Withdrawals []domain.Withdrawal `json:"withdrawals"` // List of withdrawals
			Page        int                 `json:"page"`        // Current page
			PageSize    int                 `json:"page_size"`   // Page size
			Total       int64               `json:"total"`       // Total withdrawals
			TotalPages  int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"withdrawals": cached.Withdrawals, // Cached withdrawals
				"page":        cached.Page,        // Current page
				"page_size":   cached.PageSize,    // Page size
				"total":       cached.Total,       // Total withdrawals
				"total_pages": cached.TotalPages,  // Total pages
				"cached":      true,               // Indicate response is from cache
			})
			return
		}
		var total int64 // Total count for pagination
		if err := db.Model(&domain.Withdrawal{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count withdrawals"})
			return
		}
		var withdrawals []domain.Withdrawal // Slice to hold withdrawals
		// Fetch paginated withdrawals, newest first
		if err := db.Where("user_id = ?", userID).
			Order("created_at desc").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&withdrawals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch withdrawals"})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := gin.H{
			"withdrawals": withdrawals, // List of withdrawals
			"page":        page,        // Current page
			"page_size":   pageSize,    // Page size
			"total":       total,       // Total withdrawals
			"total_pages": totalPages,  // Total pages
			"cached":      false,       // Not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)                                  // Return withdrawal history
	}
}

// ReferralSummary is one referred user in the referral stats response
type ReferralSummary struct {
	Name     string    `json:"name"`      // Referred user's display name
	JoinedAt time.Time `json:"joined_at"` // Registration timestamp
	IsActive bool      `json:"is_active"` // Whether the account is active
}

// ReferralStatsHandler returns the authenticated user's referral statistics
func ReferralStatsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()                                // Context for Redis operations
		cacheKey := "referrals:user:" + strconv.Itoa(int(userID))  // Cache key for referral stats
		var cached gin.H                                           // Cached response
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)  // Try to get from cache
		if err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached stats
			return
		}
		var user domain.User // Fetch user from database
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		var referred []domain.User // Users who signed up with this user's code
		if err := db.Where("referred_by = ?", user.ReferralCode).Find(&referred).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch referrals"})
			return
		}
		var commissions []domain.CommissionRecord // Commission history, newest first
		if err := db.Where("referrer_id = ?", userID).
			Order("created_at desc").
			Find(&commissions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch commissions"})
			return
		}
		// Summarize referred users
		summaries := make([]ReferralSummary, len(referred))
		for i, r := range referred {
			summaries[i] = ReferralSummary{
				Name:     r.FullName,  // Display name
				JoinedAt: r.CreatedAt, // Registration timestamp
				IsActive: r.IsActive,  // Account status
			}
		}
		resp := gin.H{
			"referral_code":   user.ReferralCode,          // Code to share
			"total_referrals": user.TotalReferrals,        // Qualifying referrals
			"total_earnings":  user.TotalReferralEarnings, // Accumulated commission
			"referrals":       summaries,                  // Referred users
			"commissions":     commissions,                // Commission records
			"cached":          false,                      // Not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)                                  // Return referral stats
	}
}

// UpgradeMembershipHandler lets a user buy premium membership from balance
func UpgradeMembershipHandler(eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		user, err := eng.UpgradeMembership(userID) // Purchase through the engine
		if err != nil {
			// An already-premium user is an invalid transition, not a server fault
			if errors.Is(err, ledger.ErrInvalidState) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "You already have premium membership"})
				return
			}
			respondLedgerError(c, err)
			return
		}
		// Log the upgrade
		logrus.WithFields(logrus.Fields{
			"user_id": userID,                     // User ID
			"price":   ledger.PremiumUpgradePrice, // Amount deducted
		}).Info("Membership upgraded")
		invalidateUserCache(context.Background(), rdb, userID) // Balance and membership changed
		c.JSON(http.StatusOK, gin.H{"message": "Membership upgraded", "user": user})
	}
}
