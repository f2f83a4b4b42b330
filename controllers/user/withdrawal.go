package user

import (
	"errors"
	"log"

	"bimbridge/helpers"
	"bimbridge/models"
	"bimbridge/queue"
	"bimbridge/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WithdrawalRequest struct {
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
	Asset         string          `json:"asset"`
	Destination   string          `json:"destination"`
}

// CreateWithdrawal validates and records a burn request, then enqueues the
// payout. Execution happens in the worker, never inline.
func (h *Handler) CreateWithdrawal(c *fiber.Ctx) error {
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	w, err := h.Engine.Request(req.WalletAddress, req.Amount, req.Asset, req.Destination)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		return helpers.JSONError(c, "USER_NOT_FOUND")
	case errors.Is(err, services.ErrInsufficientBalance):
		return helpers.JSONError(c, "INSUFFICIENT_BIM_BALANCE")
	case errors.Is(err, services.ErrDailyCapExceeded):
		return helpers.JSONError(c, "DAILY_WITHDRAWAL_CAP_EXCEEDED")
	case err != nil:
		return helpers.JSONError(c, err.Error())
	}

	kind, name := queue.KindTonPayout, queue.QueueTonPayout
	if w.Type == models.AssetJetton {
		kind, name = queue.KindJettonPayout, queue.QueueJettonPayout
	}
	env, err := queue.NewPayoutEnvelope(kind, w.ID)
	if err == nil {
		err = h.Queue.Enqueue(c.Context(), name, env)
	}
	if err != nil {
		// the request row stays pending; admin retry can re-enqueue it
		log.Printf("❌ [Withdrawal] enqueue for %d failed: %v", w.ID, err)
		return helpers.JSONError(c, "FAILED_TO_QUEUE_WITHDRAWAL")
	}

	return helpers.JSONSuccess(c, "Withdrawal queued", fiber.Map{
		"withdrawal_id": w.ID,
		"status":        w.Status,
	})
}

// GetWithdrawals returns the caller's withdrawal history, newest first.
func (h *Handler) GetWithdrawals(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	rows, err := h.Ledger.GetWithdrawalHistory(wallet, limit, offset)
	if errors.Is(err, services.ErrUserNotFound) {
		return helpers.JSONError(c, "USER_NOT_FOUND")
	}
	if err != nil {
		return helpers.JSONError(c, "FAILED_TO_FETCH_WITHDRAWALS")
	}

	out := make([]fiber.Map, 0, len(rows))
	for _, w := range rows {
		item := fiber.Map{
			"id":          w.ID,
			"type":        w.Type,
			"amount":      w.RequestedAmount,
			"bim_amount":  w.BimAmountRequired,
			"destination": w.DestinationAddress,
			"status":      w.Status,
			"created_at":  w.CreatedAt,
		}
		if w.PayoutID != nil {
			var payout models.Payout
			if err := h.DB.First(&payout, *w.PayoutID).Error; err == nil {
				item["tx_hash"] = payout.ChainTxHash
			}
		}
		out = append(out, item)
	}
	return helpers.JSONSuccess(c, "Withdrawal history", out)
}
