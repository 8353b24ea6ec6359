package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"monkeymoney/internal/domain"
	"monkeymoney/internal/ledger"
	"monkeymoney/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

// newTestRouter wires the full route table against an in-memory database
// and no Redis (caching disabled).
func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
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

	engine := ledger.NewEngine(db)
	r := gin.New()
	r.POST("/user", RegisterHandler(db))
	r.GET("/user", LoginHandler(db, testSecret))

	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuthMiddleware(testSecret))
	walletGroup.GET("", GetWalletHandler(db, nil))
	walletGroup.POST("/deposit", RequestDepositHandler(engine, nil))
	walletGroup.POST("/withdraw", RequestWithdrawalHandler(engine, nil))
	walletGroup.GET("/referrals", ReferralStatsHandler(db, nil))
	walletGroup.POST("/membership", UpgradeMembershipHandler(engine, nil))
	walletGroup.PUT("/password", ChangePasswordHandler(db))

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(testSecret), middleware.AdminOnlyMiddleware(db))
	adminGroup.GET("/dashboard", DashboardHandler(db, nil))
	adminGroup.GET("/users", ListUsersHandler(db, nil))
	adminGroup.GET("/deposits", AdminListDepositsHandler(db, nil))
	adminGroup.POST("/deposits/:id/approve", ApproveDepositHandler(db, engine, nil))
	adminGroup.POST("/deposits/:id/reject", RejectDepositHandler(db, engine, nil))
	adminGroup.POST("/withdrawals/:id/approve", ApproveWithdrawalHandler(db, engine, nil))
	adminGroup.POST("/withdrawals/:id/reject", RejectWithdrawalHandler(db, engine, nil))
	adminGroup.PUT("/users/:id/balance", EditBalanceHandler(engine, nil))

	return r, db
}

// doJSON performs a request with a JSON body and optional bearer token
func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerBody(username, email, referredBy string) gin.H {
	return gin.H{
		"username":    username,
		"full_name":   username + " Test",
		"email":       email,
		"password":    "secret123",
		"referred_by": referredBy,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	r, db := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/user", "", registerBody("alice", "alice@example.com", ""))
	assert.Equal(t, http.StatusCreated, w.Code)

	var user domain.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)
	assert.NotEmpty(t, user.ReferralCode)
	assert.NotEqual(t, "secret123", user.Password) // Stored hashed, never plaintext
	assert.Equal(t, domain.MembershipBasic, user.Membership)
	assert.Zero(t, user.Balance)

	// Duplicate username is rejected
	w = doJSON(t, r, http.MethodPost, "/user", "", registerBody("alice", "other@example.com", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Wrong password is rejected
	w = doJSON(t, r, http.MethodGet, "/user", "", gin.H{"email": "alice@example.com", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Correct credentials return a token
	w = doJSON(t, r, http.MethodGet, "/user", "", gin.H{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	// The token grants access to the wallet view
	w = doJSON(t, r, http.MethodGet, "/wallet", resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	// Malformed email
	w := doJSON(t, r, http.MethodPost, "/user", "", registerBody("bob", "not-an-email", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Short password
	body := registerBody("bob", "bob@example.com", "")
	body["password"] = "abc"
	w = doJSON(t, r, http.MethodPost, "/user", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Non-alphanumeric username
	w = doJSON(t, r, http.MethodPost, "/user", "", registerBody("bad name!", "bad@example.com", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterSignupReferralBonus(t *testing.T) {
	r, db := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/user", "", registerBody("alice", "alice@example.com", ""))
	require.Equal(t, http.StatusCreated, w.Code)
	var referrer domain.User
	require.NoError(t, db.Where("username = ?", "alice").First(&referrer).Error)

	w = doJSON(t, r, http.MethodPost, "/user", "", registerBody("bob", "bob@example.com", referrer.ReferralCode))
	require.Equal(t, http.StatusCreated, w.Code)

	// Referrer earns the signup bonus, the referred user a welcome bonus
	assert.Equal(t, int64(ledger.SignupReferralBonus), reloadUser(t, db, referrer.ID).Balance)
	var referred domain.User
	require.NoError(t, db.Where("username = ?", "bob").First(&referred).Error)
	assert.Equal(t, int64(ledger.SignupWelcomeBonus), referred.Balance)
	assert.Equal(t, referrer.ReferralCode, referred.ReferredBy)

	// A dangling code registers fine with no bonus
	w = doJSON(t, r, http.MethodPost, "/user", "", registerBody("carol", "carol@example.com", "NOPE0000"))
	require.Equal(t, http.StatusCreated, w.Code)
	var carol domain.User
	require.NoError(t, db.Where("username = ?", "carol").First(&carol).Error)
	assert.Zero(t, carol.Balance)
}

// reloadUser fetches the current state of a user row
func reloadUser(t *testing.T, db *gorm.DB, id uint) *domain.User {
	t.Helper()
	var user domain.User
	require.NoError(t, db.First(&user, id).Error)
	return &user
}
