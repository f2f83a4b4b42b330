package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AssetTon    = "ton"
	AssetJetton = "jetton"
)

const (
	DepositPending   = "pending"
	DepositConfirmed = "confirmed"
	DepositFailed    = "failed"
)

// DepositIntent is a server-issued expectation of an incoming transfer,
// matched against chain traffic by its unique comment tag.
type DepositIntent struct {
	gorm.Model

	UserID         uint            `gorm:"index"`
	WalletAddress  string          `gorm:"size:68;index"`
	ExpectedAmount decimal.Decimal `gorm:"type:decimal(30,10)"`
	Asset          string          `gorm:"size:8"`
	CommentTag     string          `gorm:"uniqueIndex;size:64"`
	Status         string          `gorm:"size:16;index;default:pending"`
	ChainTxHash    *string         `gorm:"uniqueIndex;size:64"`
	ExpiresAt      time.Time       `gorm:"index"`
}
