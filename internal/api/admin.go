package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"sort"     // Sorting recent activities
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"monkeymoney/internal/domain" // Importing domain models
	"monkeymoney/internal/ledger" // Ledger transition engine
	"monkeymoney/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// Activity is one row of the dashboard's recent-activity feed
type Activity struct {
	Type      string    `json:"type"`       // Deposit or Withdrawal
	UserID    uint      `json:"user_id"`    // Owning user
	FullName  string    `json:"full_name"`  // Owning user's display name
	Amount    int64     `json:"amount"`     // Transaction amount
	Status    string    `json:"status"`     // Current status
	CreatedAt time.Time `json:"created_at"` // Request timestamp
}

// DashboardHandler returns the admin overview: totals and recent activity
func DashboardHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()                               // Context for Redis operations
		cacheKey := "admin:dashboard"                             // Single cache key for the overview
		var cached gin.H                                          // Cached response
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached) // Try to get from cache
		if err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached overview
			return
		}
		var totalUsers int64 // Total registered users
		if err := db.Model(&domain.User{}).Count(&totalUsers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
			return
		}
		var pendingDeposits int64 // Deposits awaiting a decision
		if err := db.Model(&domain.Deposit{}).
			Where("status = ?", domain.StatusPending).
			Count(&pendingDeposits).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count deposits"})
			return
		}
		var pendingWithdrawals int64 // Withdrawals awaiting a decision
		if err := db.Model(&domain.Withdrawal{}).
			Where("status = ?", domain.StatusPending).
			Count(&pendingWithdrawals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count withdrawals"})
			return
		}
		var totalBalance int64 // Sum of all user balances
		if err := db.Model(&domain.User{}).
			Select("COALESCE(SUM(balance), 0)").
			Scan(&totalBalance).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum balances"})
			return
		}
		activities, err := recentActivities(db) // Ten most recent transactions
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recent activity"})
			return
		}
		resp := gin.H{
			"total_users":         totalUsers,         // Total registered users
			"pending_deposits":    pendingDeposits,    // Deposits awaiting a decision
			"pending_withdrawals": pendingWithdrawals, // Withdrawals awaiting a decision
			"total_balance":       totalBalance,       // Sum of all balances
			"recent_activities":   activities,         // Recent transaction feed
			"cached":              false,              // Not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 30*time.Second) // Short TTL, dashboard is hot
		c.JSON(http.StatusOK, resp)                                  // Return the overview
	}
}

// recentActivities merges the latest deposits and withdrawals into one feed,
// newest first, capped at ten entries
func recentActivities(db *gorm.DB) ([]Activity, error) {
	var deposits []domain.Deposit // Latest deposits
	if err := db.Order("created_at desc").Limit(10).Find(&deposits).Error; err != nil {
		return nil, err
	}
	var withdrawals []domain.Withdrawal // Latest withdrawals
	if err := db.Order("created_at desc").Limit(10).Find(&withdrawals).Error; err != nil {
		return nil, err
	}
	// Collect the owning user ids from both sets
	ids := make([]uint, 0, len(deposits)+len(withdrawals))
	for _, d := range deposits {
		ids = append(ids, d.UserID)
	}
	for _, w := range withdrawals {
		ids = append(ids, w.UserID)
	}
	names := map[uint]string{} // User id -> display name
	if len(ids) > 0 {
		var users []domain.User
		if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.FullName
		}
	}
	activities := make([]Activity, 0, len(deposits)+len(withdrawals))
	for _, d := range deposits {
		activities = append(activities, Activity{
			Type:      "Deposit",       // Transaction type
			UserID:    d.UserID,        // Owning user
			FullName:  names[d.UserID], // Display name
			Amount:    d.Amount,        // Amount
			Status:    d.Status,        // Status
			CreatedAt: d.CreatedAt,     // Request timestamp
		})
	}
	for _, w := range withdrawals {
		activities = append(activities, Activity{
			Type:      "Withdrawal",    // Transaction type
			UserID:    w.UserID,        // Owning user
			FullName:  names[w.UserID], // Display name
			Amount:    w.Amount,        // Amount
			Status:    w.Status,        // Status
			CreatedAt: w.CreatedAt,     // Request timestamp
		})
	}
	// Newest first across both sets
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].CreatedAt.After(activities[j].CreatedAt)
	})
	if len(activities) > 10 {
		activities = activities[:10]
	}
	return activities, nil
}

// ListUsersHandler returns all users, with optional search and membership filter
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for Redis operations
		// Create a cache key from the query parameters
		var keyParts []string
		for _, k := range []string{"search", "membership", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
		}
		cacheKey := "admin:users:" + strings.Join(keyParts, ":") // Final cache key
		var cached gin.H                                         // Cached response
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached user list
			return
		}
		page, pageSize := pageParams(c)    // Pagination parameters
		query := db.Model(&domain.User{})  // Start building the query
		if s := c.Query("search"); s != "" {
			like := "%" + strings.ToLower(s) + "%" // Case-insensitive contains
			query = query.Where("username LIKE ? OR email LIKE ?", like, like)
		}
		if m := c.Query("membership"); m != "" {
			query = query.Where("membership = ?", m) // Filter by membership level
		}
		var total int64 // Total user count
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
			return
		}
		var users []domain.User // Slice to hold users
		if err := query.Order("created_at desc").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := gin.H{
			"users":       users,      // List of users
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total number of users
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)                                  // Return the user list
	}
}

// AdminListDepositsHandler returns all deposits, with optional status filter
func AdminListDepositsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for Redis operations
		// Create a cache key from the query parameters
		cacheKey := "admin:deposits:status=" + c.DefaultQuery("status", "") +
			":page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		var cached gin.H // Cached response
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached deposit list
			return
		}
		page, pageSize := pageParams(c)       // Pagination parameters
		query := db.Model(&domain.Deposit{})  // Start building the query
		if s := c.Query("status"); s != "" {
			query = query.Where("status = ?", s) // Filter by status
		}
		var total int64 // Total deposit count
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count deposits"})
			return
		}
		var deposits []domain.Deposit // Slice to hold deposits
		if err := query.Order("created_at desc").
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
		c.JSON(http.StatusOK, resp)                                  // Return the deposit list
	}
}

// AdminListWithdrawalsHandler returns all withdrawals, with optional status filter
func AdminListWithdrawalsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for Redis operations
		// Create a cache key from the query parameters
		cacheKey := "admin:withdrawals:status=" + c.DefaultQuery("status", "") +
			":page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		var cached gin.H // Cached response
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached withdrawal list
			return
		}
		page, pageSize := pageParams(c)          // Pagination parameters
		query := db.Model(&domain.Withdrawal{})  // Start building the query
		if s := c.Query("status"); s != "" {
			query = query.Where("status = ?", s) // Filter by status
		}
		var total int64 // Total withdrawal count
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count withdrawals"})
			return
		}
		var withdrawals []domain.Withdrawal // Slice to hold withdrawals
		if err := query.Order("created_at desc").
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
		c.JSON(http.StatusOK, resp)                                  // Return the withdrawal list
	}
}

// idParam parses the :id path parameter as a record id
func idParam(c *gin.Context) (uint, bool) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 32) // Parse the id
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"}) // Malformed id
		return 0, false
	}
	return uint(v), true
}

// invalidateAdminCache drops cached admin list views after a mutation
func invalidateAdminCache(ctx context.Context, rdb *redis.Client) {
	_ = utils.DeleteCache(ctx, rdb, "admin:dashboard") // Overview totals changed
	// Drop the unfiltered first pages of the list views (simple version)
	for _, status := range []string{"", domain.StatusPending, domain.StatusApproved, domain.StatusRejected} {
		_ = utils.DeleteCache(ctx, rdb, "admin:deposits:status="+status+":page=1:size=20")
		_ = utils.DeleteCache(ctx, rdb, "admin:withdrawals:status="+status+":page=1:size=20")
	}
}

// invalidateDepositParties drops cached views for the deposit owner and,
// when a commission may have been paid, the owner's referrer
func invalidateDepositParties(ctx context.Context, db *gorm.DB, rdb *redis.Client, userID uint) {
	invalidateUserCache(ctx, rdb, userID) // Owner's views changed
	var user domain.User
	if err := db.First(&user, userID).Error; err != nil || user.ReferredBy == "" {
		return // No referrer to invalidate
	}
	var referrer domain.User
	if err := db.Where("referral_code = ?", user.ReferredBy).First(&referrer).Error; err == nil {
		invalidateUserCache(ctx, rdb, referrer.ID) // Referrer may have earned commission
	}
}

// ApproveDepositHandler approves a pending deposit and applies its side effects
func ApproveDepositHandler(db *gorm.DB, eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c) // Parse the deposit id
		if !ok {
			return
		}
		dep, err := eng.ApproveDeposit(id) // Apply the transition
		if err != nil {
			// Log the failure with context
			logrus.WithFields(logrus.Fields{
				"deposit_id": id,          // Deposit ID
				"error":      err.Error(), // Error message
			}).Warn("Deposit approval failed")
			respondLedgerError(c, err)
			return
		}
		// Log the approval
		logrus.WithFields(logrus.Fields{
			"deposit_id": dep.ID,     // Deposit ID
			"user_id":    dep.UserID, // Owning user
			"amount":     dep.Amount, // Credited amount
		}).Info("Deposit approved")
		ctx := context.Background()                           // Context for Redis operations
		invalidateDepositParties(ctx, db, rdb, dep.UserID)    // Owner and possibly referrer changed
		invalidateAdminCache(ctx, rdb)                        // Admin list views changed
		c.JSON(http.StatusOK, gin.H{"message": "Deposit approved", "deposit": dep})
	}
}

// RejectDepositHandler rejects a pending deposit
func RejectDepositHandler(db *gorm.DB, eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c) // Parse the deposit id
		if !ok {
			return
		}
		dep, err := eng.RejectDeposit(id) // Apply the transition
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		// Log the rejection
		logrus.WithFields(logrus.Fields{
			"deposit_id": dep.ID,     // Deposit ID
			"user_id":    dep.UserID, // Owning user
			"amount":     dep.Amount, // Amount never credited
		}).Info("Deposit rejected")
		ctx := context.Background()                  // Context for Redis operations
		invalidateUserCache(ctx, rdb, dep.UserID)    // Owner's history changed
		invalidateAdminCache(ctx, rdb)               // Admin list views changed
		c.JSON(http.StatusOK, gin.H{"message": "Deposit rejected", "deposit": dep})
	}
}

// ApproveWithdrawalHandler approves a pending withdrawal
func ApproveWithdrawalHandler(db *gorm.DB, eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c) // Parse the withdrawal id
		if !ok {
			return
		}
		wd, err := eng.ApproveWithdrawal(id) // Apply the transition
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		// Log the approval
		logrus.WithFields(logrus.Fields{
			"withdrawal_id": wd.ID,     // Withdrawal ID
			"user_id":       wd.UserID, // Owning user
			"amount":        wd.Amount, // Amount paid out of the hold
		}).Info("Withdrawal approved")
		ctx := context.Background()                 // Context for Redis operations
		invalidateUserCache(ctx, rdb, wd.UserID)    // Owner's history changed
		invalidateAdminCache(ctx, rdb)              // Admin list views changed
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal approved", "withdrawal": wd})
	}
}

// RejectWithdrawalHandler rejects a pending withdrawal and refunds the hold
func RejectWithdrawalHandler(db *gorm.DB, eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c) // Parse the withdrawal id
		if !ok {
			return
		}
		wd, err := eng.RejectWithdrawal(id) // Apply the transition and refund
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		// Log the rejection
		logrus.WithFields(logrus.Fields{
			"withdrawal_id": wd.ID,     // Withdrawal ID
			"user_id":       wd.UserID, // Owning user
			"amount":        wd.Amount, // Refunded amount
		}).Info("Withdrawal rejected and refunded")
		ctx := context.Background()                 // Context for Redis operations
		invalidateUserCache(ctx, rdb, wd.UserID)    // Owner's balance changed
		invalidateAdminCache(ctx, rdb)              // Admin list views changed
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal rejected, balance refunded", "withdrawal": wd})
	}
}

// Request struct for balance edits
type EditBalanceRequest struct {
	Balance *int64 `json:"balance" binding:"required"` // New balance, pointer so zero is accepted
	Note    string `json:"note"`                       // Optional reason, kept in the audit record
}

// EditBalanceHandler sets a user's balance directly, recording the adjustment
func EditBalanceHandler(eng *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c) // Parse the user id
		if !ok {
			return
		}
		var req EditBalanceRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		adminID, _ := c.Get("adminID")                 // Set by the admin middleware
		adminIDValue, _ := adminID.(uint)              // Zero when missing
		user, err := eng.EditUserBalance(id, adminIDValue, *req.Balance, req.Note)
		if err != nil {
			respondLedgerError(c, err)
			return
		}
		// Log the override
		logrus.WithFields(logrus.Fields{
			"user_id":  user.ID,      // Edited user
			"admin_id": adminIDValue, // Admin who performed the edit
			"balance":  user.Balance, // New balance
		}).Info("Balance edited")
		ctx := context.Background()            // Context for Redis operations
		invalidateUserCache(ctx, rdb, user.ID) // Owner's views changed
		invalidateAdminCache(ctx, rdb)         // Overview totals changed
		c.JSON(http.StatusOK, gin.H{"message": "Balance updated", "user": user})
	}
}
