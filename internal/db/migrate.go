package db

import (
	"monkeymoney/internal/domain" // Importing domain models
	"monkeymoney/internal/utils"  // Referral code generation

	"github.com/sirupsen/logrus"

	"golang.org/x/crypto/bcrypt" // Password hashing for the seed admin
	"gorm.io/driver/mysql"       // MySQL driver for GORM
	"gorm.io/gorm"               // GORM ORM library
)

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err = db.AutoMigrate(
		&domain.User{},
		&domain.Deposit{},
		&domain.Withdrawal{},
		&domain.CommissionRecord{},
		&domain.BalanceAdjustment{},
	)
	if err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
	return db
}

// SeedAdmin ensures an admin account exists. No-op when the username is
// empty or already taken.
func SeedAdmin(db *gorm.DB, username, email, password string) {
	if username == "" || password == "" {
		return // Nothing to seed
	}
	var count int64
	if err := db.Model(&domain.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		logrus.Fatalf("admin seed check failed: %v", err)
	}
	if count > 0 {
		return // Admin already present
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.Fatalf("failed to hash admin password: %v", err)
	}
	admin := domain.User{
		Username:     username,
		FullName:     "Administrator",
		Email:        email,
		Password:     string(hash),
		Role:         "admin",
		Membership:   domain.MembershipPremium,
		ReferralCode: utils.GenerateReferralCode(username),
		IsActive:     true,
	}
	if err := db.Create(&admin).Error; err != nil {
		logrus.Fatalf("failed to seed admin: %v", err)
	}
	logrus.WithField("username", username).Info("Admin account seeded")
}
