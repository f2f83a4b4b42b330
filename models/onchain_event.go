package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventDeposit = "deposit"
	EventPayout  = "payout"
)

// OnchainEvent is the write-once record of an observed chain transaction.
// The unique index on TxHash is the final dedup gate for re-scanned windows.
type OnchainEvent struct {
	gorm.Model

	TxHash      string          `gorm:"uniqueIndex;size:64"`
	EventType   string          `gorm:"size:16;index"`
	FromAddress string          `gorm:"size:68"`
	ToAddress   string          `gorm:"size:68"`
	Amount      decimal.Decimal `gorm:"type:decimal(30,10)"`
	Asset       string          `gorm:"size:8"`
	Memo        string          `gorm:"size:128"`
	BlockLT     uint64          `gorm:"index"`
	ObservedAt  time.Time
	Processed   bool           `gorm:"default:false;index"`
	RawPayload  datatypes.JSON `json:"raw_payload"`
}
