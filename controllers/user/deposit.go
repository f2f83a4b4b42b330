package user

import (
	"time"

	"bimbridge/helpers"
	"bimbridge/models"
	"bimbridge/providers/tonchain"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DepositIntentRequest struct {
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
	Asset         string          `json:"asset"`
}

// CreateDepositIntent issues a tagged deposit expectation. The user sends
// the stated amount to the treasury with the returned comment; the
// reconciler matches it by that tag.
func (h *Handler) CreateDepositIntent(c *fiber.Ctx) error {
	var req DepositIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	if !tonchain.ValidateAddress(req.WalletAddress) {
		return helpers.JSONError(c, "INVALID_WALLET_ADDRESS")
	}
	if req.Amount.Sign() <= 0 {
		return helpers.JSONError(c, "AMOUNT_MUST_BE_POSITIVE")
	}
	if req.Asset != models.AssetTon && req.Asset != models.AssetJetton {
		return helpers.JSONError(c, "UNKNOWN_ASSET")
	}

	var intent models.DepositIntent
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		u, err := h.Ledger.GetOrCreateUser(tx, req.WalletAddress)
		if err != nil {
			return err
		}

		intent = models.DepositIntent{
			UserID:         u.ID,
			WalletAddress:  req.WalletAddress,
			ExpectedAmount: req.Amount,
			Asset:          req.Asset,
			CommentTag:     tonchain.NewDepositTag(),
			Status:         models.DepositPending,
			ExpiresAt:      time.Now().UTC().Add(h.Cfg.IntentExpiry),
		}
		return tx.Create(&intent).Error
	})
	if err != nil {
		return helpers.JSONError(c, "FAILED_TO_CREATE_DEPOSIT_INTENT")
	}

	return helpers.JSONSuccess(c, "Deposit intent created", fiber.Map{
		"deposit_id":       intent.ID,
		"treasury_address": h.Cfg.TreasuryAddress,
		"comment":          intent.CommentTag,
		"expires_at":       intent.ExpiresAt,
	})
}
