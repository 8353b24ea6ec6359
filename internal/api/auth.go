package api

import (
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation
	"time"     // Timestamps

	"monkeymoney/internal/domain"     // Importing domain models
	"monkeymoney/internal/ledger"     // Signup bonus constants
	"monkeymoney/internal/middleware" // Context helpers
	"monkeymoney/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// Request struct for registration
type RegisterRequest struct {
	Username   string `json:"username" binding:"required"`  // Username must be provided
	FullName   string `json:"full_name" binding:"required"` // Display name must be provided
	Email      string `json:"email" binding:"required"`     // Email must be provided
	Phone      string `json:"phone"`                        // Optional phone number
	Password   string `json:"password" binding:"required"`  // Password must be provided
	ReferredBy string `json:"referred_by"`                  // Optional referral code
}

// Request struct for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Request struct for password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"` // Current password must be provided
	NewPassword     string `json:"new_password" binding:"required"`     // New password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Token string       `json:"token"` // JWT token
	User  *domain.User `json:"user"`  // Authenticated user
}

var (
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`) // Permissive email shape
	phoneRegexp = regexp.MustCompile(`^03[0-9]{9}$`)               // Pakistani mobile number
)

// isValidUsername checks if the username contains only alphanumeric characters
func isValidUsername(username string) bool {
	matched, _ := regexp.MatchString(`^[A-Za-z0-9]+$`, username) // Alphanumeric only
	return matched                                               // Return whether it matched
}

// RegisterHandler creates a new user account with a fresh referral code and
// applies the signup referral bonus when a valid referral code was supplied
func RegisterHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate username
		if !isValidUsername(req.Username) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be alphanumeric only"})
			return
		}
		// Validate email format
		if !emailRegexp.MatchString(req.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid email address"})
			return
		}
		// Validate phone number when provided
		if req.Phone != "" && !phoneRegexp.MatchString(strings.ReplaceAll(req.Phone, " ", "")) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid phone number (03XXXXXXXXX)"})
			return
		}
		// Validate password length
		if len(req.Password) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
			return
		}
		// Hash the password
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			// If hashing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		user := domain.User{
			Username:     strings.ToLower(req.Username), // Lowercase username to ensure uniqueness
			FullName:     req.FullName,                  // Display name
			Email:        strings.ToLower(req.Email),    // Lowercase email to ensure uniqueness
			Phone:        req.Phone,                     // Optional phone
			Password:     string(hash),                  // Hashed password
			Membership:   domain.MembershipBasic,        // Everyone starts basic
			ReferredBy:   req.ReferredBy,                // Referral code of the referrer, if any
			ReferralCode: utils.GenerateReferralCode(req.Username),
			IsActive:     true, // New accounts are active
		}
		// Create the user and apply the signup bonus atomically
		err = db.Transaction(func(tx *gorm.DB) error {
			if req.ReferredBy != "" {
				var referrer domain.User
				// Resolve the referral code; a dangling code just skips the bonus
				if err := tx.Where("referral_code = ?", req.ReferredBy).First(&referrer).Error; err == nil {
					// Referrer gets the signup bonus, the new user a welcome bonus
					if err := tx.Model(&referrer).
						Update("balance", gorm.Expr("balance + ?", ledger.SignupReferralBonus)).Error; err != nil {
						return err // Return error to rollback
					}
					user.Balance = ledger.SignupWelcomeBonus
				}
			}
			return tx.Create(&user).Error // Save the new user
		})
		if err != nil {
			// Creation fails on duplicate username or email
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username or email already registered"})
			return
		}
		// Log the registration
		logrus.WithFields(logrus.Fields{
			"user_id":     user.ID,            // New user ID
			"username":    user.Username,      // Username
			"referred_by": user.ReferredBy,    // Referral code used, if any
		}).Info("User registered")
		// Return success response
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
	}
}

// LoginHandler authenticates a user by email and returns a JWT token
func LoginHandler(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
			// If user not found, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Deactivated accounts cannot log in
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account has been deactivated"})
			return
		}
		// Record the login time
		now := time.Now()
		if err := db.Model(&user).Update("last_login", &now).Error; err != nil {
			logrus.WithField("user_id", user.ID).Warnf("failed to record login time: %v", err)
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, user.Username, jwtSecret)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Token: token, User: &user})
	}
}

// ChangePasswordHandler lets an authenticated user rotate their password
func ChangePasswordHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserIDFromContext(c) // Get userID from context
		if !ok {
			// If not authenticated, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req ChangePasswordRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate new password
		if len(req.NewPassword) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 6 characters"})
			return
		}
		if req.NewPassword == req.CurrentPassword {
			c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be different from current password"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		// Verify the current password
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
			return
		}
		// Hash and store the new password
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		if err := db.Model(&user).Update("password", string(hash)).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
			return
		}
		// Return success response
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	}
}
