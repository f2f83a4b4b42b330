package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model

	WalletAddress string `gorm:"uniqueIndex;size:68" json:"wallet_address"`

	// BimBalance must equal DepositBimBalance + EarnedBimBalance at all times.
	// The split exists because referral bonuses accrue only on deposit-origin BIM.
	BimBalance        decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"bim_balance"`
	DepositBimBalance decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"deposit_bim_balance"`
	EarnedBimBalance  decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"earned_bim_balance"`

	DailyTonWithdrawn    decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"daily_ton_withdrawn"`
	DailyJettonWithdrawn decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"daily_jetton_withdrawn"`
	DailyResetAt         time.Time       `json:"daily_reset_at"`

	ReferredBy         *uint      `gorm:"index" json:"referred_by"`
	ReferralCreditedAt *time.Time `json:"referral_credited_at"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}

// BalanceChange is the append-only audit line for every balance mutation.
// Exactly one row is inserted in the same transaction as the mutation it records.
type BalanceChange struct {
	gorm.Model

	UserID          uint            `gorm:"index"`
	BalanceType     string          `gorm:"size:16"` // deposit | earned
	PreviousBalance decimal.Decimal `gorm:"type:decimal(30,10)"`
	NewBalance      decimal.Decimal `gorm:"type:decimal(30,10)"`
	Delta           decimal.Decimal `gorm:"type:decimal(30,10)"`
	Reason          string          `gorm:"size:32;index"`
	ReferenceID     string          `gorm:"size:64;index"`
}

const (
	BalanceTypeDeposit = "deposit"
	BalanceTypeEarned  = "earned"

	ReasonDeposit    = "deposit"
	ReasonWithdrawal = "withdrawal"
	ReasonRollback   = "rollback"
	ReasonReferral   = "referral_bonus"
	ReasonReward     = "reward"
)
