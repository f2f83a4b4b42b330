package admin

import (
	"errors"

	"bimbridge/helpers"
	"bimbridge/models"
	"bimbridge/queue"
	"bimbridge/services"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Engine *services.PayoutEngine
	Queue  *queue.Queue
}

func NewHandler(engine *services.PayoutEngine, q *queue.Queue) *Handler {
	return &Handler{Engine: engine, Queue: q}
}

func adminSubject(c *fiber.Ctx) string {
	if s, ok := c.Locals("admin_subject").(string); ok && s != "" {
		return s
	}
	return "admin"
}

// ListWithdrawals shows the review queue, optionally filtered by status.
func (h *Handler) ListWithdrawals(c *fiber.Ctx) error {
	rows, err := h.Engine.ListByStatus(c.Query("status"), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return helpers.JSONError(c, "FAILED_TO_LIST_WITHDRAWALS")
	}
	return helpers.JSONSuccess(c, "Withdrawals", rows)
}

// Approve moves a pending withdrawal onto its payout queue.
func (h *Handler) Approve(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return helpers.JSONError(c, "INVALID_WITHDRAWAL_ID")
	}

	if err := h.Engine.Approve(uint(id), adminSubject(c)); err != nil {
		if errors.Is(err, services.ErrWithdrawalState) {
			return helpers.JSONError(c, "WITHDRAWAL_NOT_PENDING")
		}
		return helpers.JSONError(c, "FAILED_TO_APPROVE")
	}

	if err := h.enqueue(c, uint(id)); err != nil {
		return helpers.JSONError(c, "APPROVED_BUT_FAILED_TO_QUEUE")
	}
	return helpers.JSONSuccess(c, "Withdrawal approved", fiber.Map{"withdrawal_id": id})
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject terminates a pending withdrawal; no funds move.
func (h *Handler) Reject(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return helpers.JSONError(c, "INVALID_WITHDRAWAL_ID")
	}

	var req RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	if err := h.Engine.Reject(uint(id), adminSubject(c), req.Reason); err != nil {
		if errors.Is(err, services.ErrWithdrawalState) {
			return helpers.JSONError(c, "WITHDRAWAL_NOT_PENDING")
		}
		return helpers.JSONError(c, "FAILED_TO_REJECT")
	}
	return helpers.JSONSuccess(c, "Withdrawal rejected", fiber.Map{"withdrawal_id": id})
}

// Retry re-queues a failed withdrawal whose funds never moved.
func (h *Handler) Retry(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return helpers.JSONError(c, "INVALID_WITHDRAWAL_ID")
	}

	if err := h.Engine.Retry(uint(id), adminSubject(c)); err != nil {
		if errors.Is(err, services.ErrWithdrawalState) {
			return helpers.JSONError(c, "WITHDRAWAL_NOT_RETRYABLE")
		}
		return helpers.JSONError(c, "FAILED_TO_RETRY")
	}

	if err := h.enqueue(c, uint(id)); err != nil {
		return helpers.JSONError(c, "RETRIED_BUT_FAILED_TO_QUEUE")
	}
	return helpers.JSONSuccess(c, "Withdrawal queued for retry", fiber.Map{"withdrawal_id": id})
}

func (h *Handler) enqueue(c *fiber.Ctx, id uint) error {
	var w models.Withdrawal
	if err := h.Engine.DB().First(&w, id).Error; err != nil {
		return err
	}

	kind, name := queue.KindTonPayout, queue.QueueTonPayout
	if w.Type == models.AssetJetton {
		kind, name = queue.KindJettonPayout, queue.QueueJettonPayout
	}
	env, err := queue.NewPayoutEnvelope(kind, id)
	if err != nil {
		return err
	}
	return h.Queue.Enqueue(c.Context(), name, env)
}
