package services

import (
	"errors"
	"fmt"
	"time"

	"bimbridge/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger owns every balance mutation. The contract: one transaction that
// re-reads the user row under a row lock, validates, mutates, and writes a
// BalanceChange line — or rolls all of it back.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) DB() *gorm.DB { return l.db }

// lockForUpdate applies a row-level lock where the dialect supports it.
// sqlite (used by tests) has no FOR UPDATE; its writes serialize on the file lock.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// WithLockedUser runs fn inside a transaction with the user row locked and
// the daily counters lazily rolled over. Per-user balance operations
// serialize on this lock.
func (l *Ledger) WithLockedUser(userID uint, fn func(tx *gorm.DB, user *models.User) error) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockForUpdate(tx).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := rollDailyWindow(tx, &user); err != nil {
			return err
		}
		return fn(tx, &user)
	})
}

// rollDailyWindow resets the daily withdrawal counters when the UTC calendar
// day has changed. Runs under the row lock, so reset and cap check cannot race.
func rollDailyWindow(tx *gorm.DB, user *models.User) error {
	now := time.Now().UTC()
	if sameUTCDay(user.DailyResetAt, now) {
		return nil
	}
	user.DailyTonWithdrawn = decimal.Zero
	user.DailyJettonWithdrawn = decimal.Zero
	user.DailyResetAt = now
	return tx.Model(user).Updates(map[string]any{
		"daily_ton_withdrawn":    decimal.Zero,
		"daily_jetton_withdrawn": decimal.Zero,
		"daily_reset_at":         now,
	}).Error
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Credit adds BIM to one sub-balance and records the change. Must be called
// on a user row already locked by WithLockedUser.
func (l *Ledger) Credit(tx *gorm.DB, user *models.User, balanceType string, amount decimal.Decimal, reason, referenceID string) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	prev := user.BimBalance
	switch balanceType {
	case models.BalanceTypeDeposit:
		user.DepositBimBalance = user.DepositBimBalance.Add(amount)
	case models.BalanceTypeEarned:
		user.EarnedBimBalance = user.EarnedBimBalance.Add(amount)
	default:
		return fmt.Errorf("unknown balance type %q", balanceType)
	}
	user.BimBalance = user.BimBalance.Add(amount)

	if err := tx.Model(user).Updates(map[string]any{
		"bim_balance":         user.BimBalance,
		"deposit_bim_balance": user.DepositBimBalance,
		"earned_bim_balance":  user.EarnedBimBalance,
	}).Error; err != nil {
		return err
	}

	return tx.Create(&models.BalanceChange{
		UserID:          user.ID,
		BalanceType:     balanceType,
		PreviousBalance: prev,
		NewBalance:      user.BimBalance,
		Delta:           amount,
		Reason:          reason,
		ReferenceID:     referenceID,
	}).Error
}

// Debit burns BIM, consuming earned-origin balance before deposit-origin so
// the referral basis (deposit-origin BIM) survives as long as possible.
// One BalanceChange row is written per sub-balance touched.
func (l *Ledger) Debit(tx *gorm.DB, user *models.User, amount decimal.Decimal, reason, referenceID string) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	if user.BimBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	fromEarned := decimal.Min(user.EarnedBimBalance, amount)
	fromDeposit := amount.Sub(fromEarned)

	if fromDeposit.GreaterThan(user.DepositBimBalance) {
		// sub-balances out of sync with the total; refuse rather than clamp
		return fmt.Errorf("balance invariant violated for user %d: total %s, deposit %s, earned %s",
			user.ID, user.BimBalance, user.DepositBimBalance, user.EarnedBimBalance)
	}

	var changes []models.BalanceChange
	prev := user.BimBalance
	if fromEarned.Sign() > 0 {
		user.EarnedBimBalance = user.EarnedBimBalance.Sub(fromEarned)
		user.BimBalance = user.BimBalance.Sub(fromEarned)
		changes = append(changes, models.BalanceChange{
			UserID:          user.ID,
			BalanceType:     models.BalanceTypeEarned,
			PreviousBalance: prev,
			NewBalance:      user.BimBalance,
			Delta:           fromEarned.Neg(),
			Reason:          reason,
			ReferenceID:     referenceID,
		})
		prev = user.BimBalance
	}
	if fromDeposit.Sign() > 0 {
		user.DepositBimBalance = user.DepositBimBalance.Sub(fromDeposit)
		user.BimBalance = user.BimBalance.Sub(fromDeposit)
		changes = append(changes, models.BalanceChange{
			UserID:          user.ID,
			BalanceType:     models.BalanceTypeDeposit,
			PreviousBalance: prev,
			NewBalance:      user.BimBalance,
			Delta:           fromDeposit.Neg(),
			Reason:          reason,
			ReferenceID:     referenceID,
		})
	}

	if err := tx.Model(user).Updates(map[string]any{
		"bim_balance":         user.BimBalance,
		"deposit_bim_balance": user.DepositBimBalance,
		"earned_bim_balance":  user.EarnedBimBalance,
	}).Error; err != nil {
		return err
	}
	return tx.Create(&changes).Error
}

// GetOrCreateUser resolves a user by wallet address, creating the row on
// first sight. Safe to call inside a reconciliation transaction.
func (l *Ledger) GetOrCreateUser(tx *gorm.DB, walletAddress string) (*models.User, error) {
	var user models.User
	err := lockForUpdate(tx).Where("wallet_address = ?", walletAddress).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		WalletAddress: walletAddress,
		DailyResetAt:  time.Now().UTC(),
		IsActive:      true,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser is a lock-free read.
func (l *Ledger) GetUser(walletAddress string) (*models.User, error) {
	var user models.User
	if err := l.db.Where("wallet_address = ?", walletAddress).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetWithdrawalHistory is a lock-free paginated read, newest first.
func (l *Ledger) GetWithdrawalHistory(walletAddress string, limit, offset int) ([]models.Withdrawal, error) {
	user, err := l.GetUser(walletAddress)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows []models.Withdrawal
	err = l.db.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}
