package webhook

import (
	"encoding/json"
	"time"

	"bimbridge/helpers"
	"bimbridge/models"
	"bimbridge/providers/tonchain"
	"bimbridge/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Queue *queue.Queue
}

func NewHandler(q *queue.Queue) *Handler {
	return &Handler{Queue: q}
}

type ChainEventRequest struct {
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      decimal.Decimal `json:"amount"`
	Asset       string          `json:"asset"`
	Memo        string          `json:"memo"`
	BlockLT     uint64          `json:"block_lt"`
	Timestamp   int64           `json:"timestamp"`
}

// ReceiveChainEvent accepts a provider-delivered transfer observation and
// queues it for reconciliation. Shape is validated here, at the boundary;
// duplicates are handled downstream by the tx_hash constraint.
func (h *Handler) ReceiveChainEvent(c *fiber.Ctx) error {
	var req ChainEventRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	if req.TxHash == "" || req.ToAddress == "" {
		return helpers.JSONError(c, "TX_HASH_AND_TO_ADDRESS_REQUIRED")
	}
	if req.Asset != models.AssetTon && req.Asset != models.AssetJetton {
		return helpers.JSONError(c, "UNKNOWN_ASSET")
	}
	if req.Amount.Sign() <= 0 {
		return helpers.JSONError(c, "AMOUNT_MUST_BE_POSITIVE")
	}

	raw, _ := json.Marshal(req)
	ev := tonchain.TransferEvent{
		TxHash:      req.TxHash,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Amount:      req.Amount,
		Asset:       req.Asset,
		Memo:        req.Memo,
		BlockLT:     req.BlockLT,
		ObservedAt:  time.Unix(req.Timestamp, 0).UTC(),
		Raw:         raw,
	}

	env, err := queue.NewDepositCreditEnvelope(ev)
	if err == nil {
		err = h.Queue.Enqueue(c.Context(), queue.QueueDepositCredit, env)
	}
	if err != nil {
		return helpers.JSONError(c, "FAILED_TO_QUEUE_EVENT")
	}

	return helpers.JSONSuccess(c, "Event queued", fiber.Map{"tx_hash": req.TxHash})
}
