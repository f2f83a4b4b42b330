package user

import (
	"errors"
	"time"

	"bimbridge/helpers"
	"bimbridge/models"
	"bimbridge/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// GetBalance reports the wallet's BIM balance and remaining daily headroom.
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	wallet := c.Params("wallet")

	u, err := h.Ledger.GetUser(wallet)
	if errors.Is(err, services.ErrUserNotFound) {
		return helpers.JSONError(c, "USER_NOT_FOUND")
	}
	if err != nil {
		return helpers.JSONError(c, "FAILED_TO_FETCH_BALANCE")
	}

	tonUsed, jettonUsed := u.DailyTonWithdrawn, u.DailyJettonWithdrawn
	if !sameUTCDay(u.DailyResetAt, time.Now().UTC()) {
		tonUsed, jettonUsed = decimal.Zero, decimal.Zero
	}

	return helpers.JSONSuccess(c, "Balance", fiber.Map{
		"bim_balance":         u.BimBalance,
		"deposit_bim_balance": u.DepositBimBalance,
		"earned_bim_balance":  u.EarnedBimBalance,
		"daily_limits": fiber.Map{
			models.AssetTon: fiber.Map{
				"cap":       h.Cfg.DailyTonCap,
				"used":      tonUsed,
				"remaining": decimal.Max(decimal.Zero, h.Cfg.DailyTonCap.Sub(tonUsed)),
			},
			models.AssetJetton: fiber.Map{
				"cap":       h.Cfg.DailyJettonCap,
				"used":      jettonUsed,
				"remaining": decimal.Max(decimal.Zero, h.Cfg.DailyJettonCap.Sub(jettonUsed)),
			},
		},
	})
}
