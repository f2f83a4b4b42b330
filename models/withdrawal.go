package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	WithdrawalPending    = "pending"
	WithdrawalApproved   = "approved"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalFailed     = "failed"
	WithdrawalRejected   = "rejected"
)

type Withdrawal struct {
	gorm.Model

	UserID             uint            `gorm:"index"`
	Type               string          `gorm:"size:8"` // ton | jetton
	RequestedAmount    decimal.Decimal `gorm:"type:decimal(30,10)"`
	BimAmountRequired  decimal.Decimal `gorm:"type:decimal(30,10)"`
	DestinationAddress string          `gorm:"size:68"`
	Status             string          `gorm:"size:16;index;default:pending"`
	PayoutID           *uint           `gorm:"index"`
	ErrorMessage       string          `gorm:"size:255"`

	// Set when funds may have left the treasury but record-keeping failed.
	// Such a withdrawal must never be retried automatically.
	NeedsReconciliation bool `gorm:"default:false"`
}

// Payout is created only after an on-chain send has been submitted and confirmed.
type Payout struct {
	gorm.Model

	UserID             uint            `gorm:"index"`
	WithdrawalID       uint            `gorm:"index"`
	Type               string          `gorm:"size:8"`
	Amount             decimal.Decimal `gorm:"type:decimal(30,10)"`
	BimDeducted        decimal.Decimal `gorm:"type:decimal(30,10)"`
	DestinationAddress string          `gorm:"size:68"`
	ChainTxHash        string          `gorm:"size:64;index"`
	Status             string          `gorm:"size:16"`
	ProcessedAt        time.Time
}

const PayoutCompleted = "completed"
