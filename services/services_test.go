package services

import (
	"fmt"
	"testing"
	"time"

	"bimbridge/config"
	"bimbridge/database"
	"bimbridge/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		BimPerTon:           decimal.NewFromInt(200),
		BimPerJetton:        decimal.NewFromInt(1),
		DepositTolerance:    decimal.RequireFromString("0.001"),
		IntentExpiry:        24 * time.Hour,
		MinTonWithdrawal:    decimal.RequireFromString("0.1"),
		MinJettonWithdrawal: decimal.NewFromInt(10),
		DailyTonCap:         decimal.NewFromInt(10),
		DailyJettonCap:      decimal.NewFromInt(1000),
		ReferralPercent:     decimal.NewFromInt(5),
		ReferralActiveDays:  365,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, wallet string, depositBim, earnedBim decimal.Decimal) *models.User {
	t.Helper()
	u := &models.User{
		WalletAddress:     wallet,
		BimBalance:        depositBim.Add(earnedBim),
		DepositBimBalance: depositBim,
		EarnedBimBalance:  earnedBim,
		DailyResetAt:      time.Now().UTC(),
		IsActive:          true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create test user: %v", err)
	}
	// a seeded balance needs its matching ledger lines for the sum invariant
	if depositBim.Sign() > 0 {
		seedChange(t, db, u.ID, models.BalanceTypeDeposit, depositBim)
	}
	if earnedBim.Sign() > 0 {
		seedChange(t, db, u.ID, models.BalanceTypeEarned, earnedBim)
	}
	return u
}

func seedChange(t *testing.T, db *gorm.DB, userID uint, balanceType string, amount decimal.Decimal) {
	t.Helper()
	err := db.Create(&models.BalanceChange{
		UserID:      userID,
		BalanceType: balanceType,
		NewBalance:  amount,
		Delta:       amount,
		Reason:      models.ReasonReward,
		ReferenceID: "seed",
	}).Error
	if err != nil {
		t.Fatalf("seed balance change: %v", err)
	}
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var u models.User
	if err := db.First(&u, id).Error; err != nil {
		t.Fatalf("reload user %d: %v", id, err)
	}
	return &u
}

// sumDeltas computes the ledger-line sum that must always equal the balance.
func sumDeltas(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var sum decimal.Decimal
	row := db.Model(&models.BalanceChange{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").Row()
	if err := row.Scan(&sum); err != nil {
		t.Fatalf("sum deltas: %v", err)
	}
	return sum
}

func assertBalanceInvariant(t *testing.T, db *gorm.DB, userID uint) {
	t.Helper()
	u := reloadUser(t, db, userID)
	if sum := sumDeltas(t, db, userID); !u.BimBalance.Equal(sum) {
		t.Errorf("balance invariant broken: bim_balance = %s, sum(delta) = %s", u.BimBalance, sum)
	}
	if !u.BimBalance.Equal(u.DepositBimBalance.Add(u.EarnedBimBalance)) {
		t.Errorf("sub-balance split broken: total %s, deposit %s, earned %s",
			u.BimBalance, u.DepositBimBalance, u.EarnedBimBalance)
	}
}
