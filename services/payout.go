package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"bimbridge/config"
	"bimbridge/models"
	"bimbridge/providers/tonchain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ChainSigner is the payout engine's view of the treasury key holder.
type ChainSigner interface {
	Send(ctx context.Context, asset, destination string, amount decimal.Decimal, memo string) (string, error)
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// PayoutEngine drives the withdrawal state machine:
//
//	pending → processing → {completed | failed}
//	pending → approved → processing → {completed | failed}
//	pending → rejected
//
// The critical contract is in Execute: a failed send rolls the BIM debit
// back, while a send whose outcome is unknown keeps the debit and parks the
// withdrawal for manual reconciliation.
type PayoutEngine struct {
	db     *gorm.DB
	cfg    *config.Config
	ledger *Ledger
	audit  *Audit
	signer ChainSigner
}

func NewPayoutEngine(db *gorm.DB, cfg *config.Config, ledger *Ledger, audit *Audit, signer ChainSigner) *PayoutEngine {
	return &PayoutEngine{db: db, cfg: cfg, ledger: ledger, audit: audit, signer: signer}
}

func (e *PayoutEngine) DB() *gorm.DB { return e.db }

func (e *PayoutEngine) policy(asset string) (min, cap, rate decimal.Decimal) {
	if asset == models.AssetJetton {
		return e.cfg.MinJettonWithdrawal, e.cfg.DailyJettonCap, e.cfg.BimPerJetton
	}
	return e.cfg.MinTonWithdrawal, e.cfg.DailyTonCap, e.cfg.BimPerTon
}

func dailyUsed(user *models.User, asset string, now time.Time) decimal.Decimal {
	if !sameUTCDay(user.DailyResetAt, now) {
		return decimal.Zero
	}
	if asset == models.AssetJetton {
		return user.DailyJettonWithdrawn
	}
	return user.DailyTonWithdrawn
}

// Request validates a withdrawal and records it as pending. Balance and cap
// are checked again under the row lock at execution time; the checks here
// only close off obviously bad requests before anything is enqueued.
func (e *PayoutEngine) Request(walletAddress string, amount decimal.Decimal, asset, destination string) (*models.Withdrawal, error) {
	if asset != models.AssetTon && asset != models.AssetJetton {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}
	if !tonchain.ValidateAddress(destination) {
		return nil, fmt.Errorf("invalid destination address")
	}

	min, cap, rate := e.policy(asset)
	if amount.LessThan(min) {
		return nil, fmt.Errorf("amount below minimum of %s", min)
	}

	user, err := e.ledger.GetUser(walletAddress)
	if err != nil {
		return nil, err
	}

	bimRequired := amount.Mul(rate)
	if user.BimBalance.LessThan(bimRequired) {
		return nil, ErrInsufficientBalance
	}
	if dailyUsed(user, asset, time.Now().UTC()).Add(amount).GreaterThan(cap) {
		return nil, ErrDailyCapExceeded
	}

	w := &models.Withdrawal{
		UserID:             user.ID,
		Type:               asset,
		RequestedAmount:    amount,
		BimAmountRequired:  bimRequired,
		DestinationAddress: destination,
		Status:             models.WithdrawalPending,
	}
	if err := e.db.Create(w).Error; err != nil {
		return nil, err
	}

	e.audit.Log(walletAddress, "withdrawal_requested", fmt.Sprint(w.ID), map[string]any{
		"asset": asset, "amount": amount, "bim_required": bimRequired,
	})
	return w, nil
}

// Execute runs the payout protocol for a pending or approved withdrawal.
//
// Inside one locked transaction it re-checks balance and cap, debits BIM,
// and hands the transfer to the signer. A send failure aborts the
// transaction so the debit never survives without a chain transfer; a
// transient cause then puts the withdrawal back where the queue can
// redeliver it, anything else marks it failed.
func (e *PayoutEngine) Execute(ctx context.Context, withdrawalID uint) error {
	var w models.Withdrawal
	if err := e.db.First(&w, withdrawalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWithdrawalState
		}
		return err
	}

	// A withdrawal with a Payout already completed; one flagged for
	// reconciliation may have moved funds. Neither is ever re-executed.
	if w.PayoutID != nil || w.NeedsReconciliation {
		return ErrWithdrawalState
	}

	res := e.db.Model(&models.Withdrawal{}).
		Where("id = ? AND status IN ?", w.ID, []string{models.WithdrawalPending, models.WithdrawalApproved}).
		Update("status", models.WithdrawalProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWithdrawalState
	}

	_, cap, _ := e.policy(w.Type)

	var (
		sent        bool
		unconfirmed bool
		txHash      string
	)

	execErr := e.ledger.WithLockedUser(w.UserID, func(tx *gorm.DB, user *models.User) error {
		now := time.Now().UTC()
		if dailyUsed(user, w.Type, now).Add(w.RequestedAmount).GreaterThan(cap) {
			return ErrDailyCapExceeded
		}

		if err := e.ledger.Debit(tx, user, w.BimAmountRequired, models.ReasonWithdrawal, fmt.Sprint(w.ID)); err != nil {
			return err
		}

		counter := "daily_ton_withdrawn"
		newUsed := user.DailyTonWithdrawn.Add(w.RequestedAmount)
		if w.Type == models.AssetJetton {
			counter = "daily_jetton_withdrawn"
			newUsed = user.DailyJettonWithdrawn.Add(w.RequestedAmount)
		}
		if err := tx.Model(user).Update(counter, newUsed).Error; err != nil {
			return err
		}

		memo := fmt.Sprintf("BIM:WITHDRAWAL:%d", w.ID)
		hash, sendErr := e.signer.Send(ctx, w.Type, w.DestinationAddress, w.RequestedAmount, memo)
		if errors.Is(sendErr, tonchain.ErrUnconfirmed) ||
			errors.Is(sendErr, context.Canceled) || errors.Is(sendErr, context.DeadlineExceeded) {
			// Funds may have left the treasury: a confirmation timeout and
			// a context cancelled mid-send both leave the outcome unknown.
			// Keep the debit, park the withdrawal, and let a human
			// reconcile against chain state.
			unconfirmed = true
			return tx.Model(&models.Withdrawal{}).Where("id = ?", w.ID).Updates(map[string]any{
				"status":               models.WithdrawalFailed,
				"error_message":        "transfer submitted but unconfirmed",
				"needs_reconciliation": true,
			}).Error
		}
		if sendErr != nil {
			return sendErr
		}
		sent = true
		txHash = hash

		payout := models.Payout{
			UserID:             w.UserID,
			WithdrawalID:       w.ID,
			Type:               w.Type,
			Amount:             w.RequestedAmount,
			BimDeducted:        w.BimAmountRequired,
			DestinationAddress: w.DestinationAddress,
			ChainTxHash:        hash,
			Status:             models.PayoutCompleted,
			ProcessedAt:        now,
		}
		if err := tx.Create(&payout).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Withdrawal{}).Where("id = ?", w.ID).Updates(map[string]any{
			"status":    models.WithdrawalCompleted,
			"payout_id": payout.ID,
		}).Error; err != nil {
			return err
		}

		return tx.Create(&models.OnchainEvent{
			TxHash:      hash,
			EventType:   models.EventPayout,
			FromAddress: "",
			ToAddress:   w.DestinationAddress,
			Amount:      w.RequestedAmount,
			Asset:       w.Type,
			Memo:        memo,
			ObservedAt:  now,
			Processed:   true,
		}).Error
	})

	switch {
	case execErr == nil && unconfirmed:
		e.audit.Log("payout-engine", "withdrawal_unconfirmed", fmt.Sprint(w.ID), nil)
		return ErrNeedsReconciliation

	case execErr == nil:
		e.audit.Log("payout-engine", "withdrawal_completed", fmt.Sprint(w.ID), map[string]any{"tx_hash": txHash})
		return nil

	case sent || unconfirmed:
		// The send reached the chain (or may have) but a later write aborted
		// the transaction: the debit rolled back while value left the
		// treasury. Park it; this path must never be retried automatically.
		e.markFailed(w.ID, "payout bookkeeping failed after send: "+execErr.Error(), true)
		e.audit.Log("payout-engine", "withdrawal_needs_reconciliation", fmt.Sprint(w.ID), map[string]any{
			"tx_hash": txHash, "error": execErr.Error(),
		})
		return ErrNeedsReconciliation

	default:
		// Funds never left the treasury; the debit rolled back with the
		// transaction. A transient cause goes back to its pre-execution
		// status so the queue's redelivery finds it executable again;
		// anything else is terminally failed.
		if RetryableFailure(execErr) {
			e.revertTransient(w.ID, w.Status, execErr.Error())
		} else {
			e.markFailed(w.ID, execErr.Error(), false)
		}
		return execErr
	}
}

// revertTransient restores a withdrawal to pending or approved after a
// transient send failure, keeping the last error for operators.
func (e *PayoutEngine) revertTransient(id uint, status, message string) {
	err := e.db.Model(&models.Withdrawal{}).Where("id = ?", id).Updates(map[string]any{
		"status":        status,
		"error_message": clipMessage(message),
	}).Error
	if err != nil {
		log.Printf("❌ [PayoutEngine] failed to revert withdrawal %d to %s: %v", id, status, err)
	}
}

// markFailed writes the failed marker outside the (rolled back) execution
// transaction.
func (e *PayoutEngine) markFailed(id uint, message string, needsReconciliation bool) {
	err := e.db.Model(&models.Withdrawal{}).Where("id = ?", id).Updates(map[string]any{
		"status":               models.WithdrawalFailed,
		"error_message":        clipMessage(message),
		"needs_reconciliation": needsReconciliation,
	}).Error
	if err != nil {
		log.Printf("❌ [PayoutEngine] failed to mark withdrawal %d failed: %v", id, err)
	}
}

// clipMessage bounds an error message to the column size without splitting a
// UTF-8 sequence.
func clipMessage(s string) string {
	const max = 255
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Approve moves a pending withdrawal to approved.
func (e *PayoutEngine) Approve(id uint, admin string) error {
	res := e.db.Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalPending).
		Update("status", models.WithdrawalApproved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWithdrawalState
	}
	e.audit.Log(admin, "withdrawal_approved", fmt.Sprint(id), nil)
	return nil
}

// Reject terminates a pending withdrawal without moving funds.
func (e *PayoutEngine) Reject(id uint, admin, reason string) error {
	res := e.db.Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalPending).
		Updates(map[string]any{"status": models.WithdrawalRejected, "error_message": reason})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWithdrawalState
	}
	e.audit.Log(admin, "withdrawal_rejected", fmt.Sprint(id), map[string]any{"reason": reason})
	return nil
}

// Retry re-arms a failed withdrawal for resubmission. Guarded by internal
// state only: a withdrawal holding a Payout or flagged for reconciliation
// already moved (or may have moved) funds and is never resubmitted.
func (e *PayoutEngine) Retry(id uint, admin string) error {
	var w models.Withdrawal
	if err := e.db.First(&w, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWithdrawalState
		}
		return err
	}
	if w.Status != models.WithdrawalFailed || w.PayoutID != nil || w.NeedsReconciliation {
		return ErrWithdrawalState
	}

	res := e.db.Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalFailed).
		Updates(map[string]any{"status": models.WithdrawalApproved, "error_message": ""})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWithdrawalState
	}
	e.audit.Log(admin, "withdrawal_retried", fmt.Sprint(id), nil)
	return nil
}

// ListByStatus is the admin review listing.
func (e *PayoutEngine) ListByStatus(status string, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := e.db.Order("created_at ASC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.Withdrawal
	err := q.Find(&rows).Error
	return rows, err
}
