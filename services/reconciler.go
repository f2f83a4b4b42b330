package services

import (
	"context"
	"errors"
	"log"
	"time"

	"bimbridge/config"
	"bimbridge/models"
	"bimbridge/providers/tonchain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reconciler matches observed chain transfers to pending deposit intents and
// applies the balance credit exactly once. Safe to re-run on overlapping
// event windows: the tx_hash unique constraint and the pending-status gate
// make repeats no-ops.
type Reconciler struct {
	db       *gorm.DB
	cfg      *config.Config
	ledger   *Ledger
	audit    *Audit
	notifier MintNotifier
}

func NewReconciler(db *gorm.DB, cfg *config.Config, ledger *Ledger, audit *Audit, notifier MintNotifier) *Reconciler {
	return &Reconciler{db: db, cfg: cfg, ledger: ledger, audit: audit, notifier: notifier}
}

func (r *Reconciler) rate(asset string) decimal.Decimal {
	if asset == models.AssetJetton {
		return r.cfg.BimPerJetton
	}
	return r.cfg.BimPerTon
}

// ProcessBatch runs ProcessEvent per event, logging failures and moving on.
func (r *Reconciler) ProcessBatch(ctx context.Context, events []tonchain.TransferEvent) {
	for _, ev := range events {
		if err := r.ProcessEvent(ctx, ev); err != nil {
			log.Printf("❌ [Reconciler] event %s: %v", ev.TxHash, err)
		}
	}
}

// ProcessEvent credits one transfer event. Returns nil both on success and
// on the skip paths (already processed, not ours, amount out of tolerance).
func (r *Reconciler) ProcessEvent(ctx context.Context, ev tonchain.TransferEvent) error {
	var seen int64
	if err := r.db.Model(&models.OnchainEvent{}).Where("tx_hash = ?", ev.TxHash).Count(&seen).Error; err != nil {
		return err
	}
	if seen > 0 {
		return nil
	}

	tag, ok := tonchain.ParseDepositTag(ev.Memo)
	if !ok {
		return nil
	}

	var intent models.DepositIntent
	err := r.db.Where("comment_tag = ? AND status = ?", tag, models.DepositPending).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // not ours, already consumed, or stale
	}
	if err != nil {
		return err
	}

	if intent.Asset != ev.Asset {
		return nil
	}
	// Out-of-tolerance transfers leave the intent pending: a correction
	// transfer with the same tag may still arrive.
	if ev.Amount.Sub(intent.ExpectedAmount).Abs().GreaterThan(r.cfg.DepositTolerance) {
		log.Printf("⚠️  [Reconciler] intent %d amount mismatch: expected %s got %s", intent.ID, intent.ExpectedAmount, ev.Amount)
		return nil
	}

	bim := ev.Amount.Mul(r.rate(ev.Asset))
	var user *models.User
	var firstDeposit bool

	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		// re-check the pending gate under the transaction
		res := tx.Model(&models.DepositIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.DepositPending).
			Updates(map[string]any{"status": models.DepositConfirmed, "chain_tx_hash": ev.TxHash})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrDuplicatedKey // consumed concurrently
		}

		u, err := r.ledger.GetOrCreateUser(tx, intent.WalletAddress)
		if err != nil {
			return err
		}

		var prior int64
		if err := tx.Model(&models.DepositIntent{}).
			Where("user_id = ? AND status = ? AND id <> ?", u.ID, models.DepositConfirmed, intent.ID).
			Count(&prior).Error; err != nil {
			return err
		}
		firstDeposit = prior == 0

		if err := r.ledger.Credit(tx, u, models.BalanceTypeDeposit, bim, models.ReasonDeposit, ev.TxHash); err != nil {
			return err
		}

		if err := tx.Create(&models.OnchainEvent{
			TxHash:      ev.TxHash,
			EventType:   models.EventDeposit,
			FromAddress: ev.FromAddress,
			ToAddress:   ev.ToAddress,
			Amount:      ev.Amount,
			Asset:       ev.Asset,
			Memo:        ev.Memo,
			BlockLT:     ev.BlockLT,
			ObservedAt:  ev.ObservedAt,
			Processed:   true,
			RawPayload:  datatypes.JSON(ev.Raw),
		}).Error; err != nil {
			return err
		}

		user = u
		return nil
	})
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		return nil // a concurrent run won the race; this delivery is a no-op
	}
	if txErr != nil {
		return txErr
	}

	r.audit.Log("reconciler", "deposit_confirmed", ev.TxHash, map[string]any{
		"intent_id": intent.ID,
		"user_id":   user.ID,
		"amount":    ev.Amount,
		"bim":       bim,
	})

	// post-commit hooks: neither may undo the credit
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := r.notifier.NotifyMint(nctx, user.WalletAddress, bim, ev.TxHash); err != nil {
			log.Printf("⚠️  [Reconciler] mint notify for %s failed: %v", ev.TxHash, err)
		}
	}()

	if firstDeposit && user.ReferredBy != nil {
		if err := r.creditReferral(user); err != nil {
			log.Printf("⚠️  [Reconciler] referral bonus for user %d failed: %v", user.ID, err)
		}
	}
	return nil
}

// creditReferral pays the referrer a percentage of the referee's currently
// active deposit-origin BIM. Runs as its own transaction after the deposit
// commit; at most one referral credit per referrer per UTC day.
func (r *Reconciler) creditReferral(referee *models.User) error {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -r.cfg.ReferralActiveDays)

	var basis decimal.Decimal
	row := r.db.Model(&models.BalanceChange{}).
		Where("user_id = ? AND reason = ? AND balance_type = ? AND delta > 0 AND created_at > ?",
			referee.ID, models.ReasonDeposit, models.BalanceTypeDeposit, cutoff).
		Select("COALESCE(SUM(delta), 0)").
		Row()
	if err := row.Scan(&basis); err != nil {
		return err
	}
	basis = decimal.Min(basis, referee.DepositBimBalance)

	bonus := basis.Mul(r.cfg.ReferralPercent).Div(decimal.NewFromInt(100))
	if bonus.Sign() <= 0 {
		return nil
	}

	return r.ledger.WithLockedUser(*referee.ReferredBy, func(tx *gorm.DB, referrer *models.User) error {
		if referrer.ReferralCreditedAt != nil && sameUTCDay(*referrer.ReferralCreditedAt, now) {
			return nil // already credited today
		}
		if err := r.ledger.Credit(tx, referrer, models.BalanceTypeEarned, bonus, models.ReasonReferral, referee.WalletAddress); err != nil {
			return err
		}
		return tx.Model(referrer).Update("referral_credited_at", now).Error
	})
}
