package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging

	"monkeymoney/internal/api"        // Custom package for API handlers
	"monkeymoney/internal/config"     // Custom package for configuration
	"monkeymoney/internal/ledger"     // Ledger transition engine
	"monkeymoney/internal/middleware" // Custom package for middleware

	// For loading .env files
	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// The ledger transition engine owns every balance mutation
	engine := ledger.NewEngine(db)

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Auth routes
	r.POST("/user", api.RegisterHandler(db))            // Registration endpoint
	r.GET("/user", api.LoginHandler(db, cfg.JWTSecret)) // Login endpoint

	// Wallet routes (protected by JWT)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))                      // Protect wallet routes with JWT middleware
	walletGroup.GET("", api.GetWalletHandler(db, redisClient))                        // Profile and balance endpoint
	walletGroup.POST("/deposit", api.RequestDepositHandler(engine, redisClient))      // Deposit request endpoint
	walletGroup.POST("/withdraw", api.RequestWithdrawalHandler(engine, redisClient))  // Withdrawal request endpoint
	walletGroup.GET("/deposits", api.ListDepositsHandler(db, redisClient))            // Deposit history endpoint
	walletGroup.GET("/withdrawals", api.ListWithdrawalsHandler(db, redisClient))      // Withdrawal history endpoint
	walletGroup.GET("/referrals", api.ReferralStatsHandler(db, redisClient))          // Referral stats endpoint
	walletGroup.POST("/membership", api.UpgradeMembershipHandler(engine, redisClient)) // Premium upgrade endpoint
	walletGroup.PUT("/password", api.ChangePasswordHandler(db))                       // Password change endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	// Protect admin routes with JWT and AdminOnly middleware
	adminGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.AdminOnlyMiddleware(db))
	adminGroup.GET("/dashboard", api.DashboardHandler(db, redisClient))                             // Overview endpoint
	adminGroup.GET("/users", api.ListUsersHandler(db, redisClient))                                 // List users endpoint
	adminGroup.GET("/deposits", api.AdminListDepositsHandler(db, redisClient))                      // List deposits endpoint
	adminGroup.GET("/withdrawals", api.AdminListWithdrawalsHandler(db, redisClient))                // List withdrawals endpoint
	adminGroup.POST("/deposits/:id/approve", api.ApproveDepositHandler(db, engine, redisClient))    // Approve deposit endpoint
	adminGroup.POST("/deposits/:id/reject", api.RejectDepositHandler(db, engine, redisClient))      // Reject deposit endpoint
	adminGroup.POST("/withdrawals/:id/approve", api.ApproveWithdrawalHandler(db, engine, redisClient)) // Approve withdrawal endpoint
	adminGroup.POST("/withdrawals/:id/reject", api.RejectWithdrawalHandler(db, engine, redisClient))   // Reject withdrawal endpoint
	adminGroup.PUT("/users/:id/balance", api.EditBalanceHandler(engine, redisClient))               // Balance edit endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
