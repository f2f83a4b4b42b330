package jobs

import (
	"context"
	"log"
	"time"

	"bimbridge/models"
	"bimbridge/providers/tonchain"
	"bimbridge/queue"

	"gorm.io/gorm"
)

// StartDepositScanner polls the treasury's transaction history and feeds
// every observed transfer to the deposit-credit queue. Overlapping scan
// windows are fine; dedup happens at the ledger.
func StartDepositScanner(ctx context.Context, reader *tonchain.Reader, q *queue.Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			events, err := reader.FetchRecent(ctx)
			if err != nil {
				log.Printf("❌ error scanning treasury history: %v", err)
				continue
			}
			for _, ev := range events {
				env, err := queue.NewDepositCreditEnvelope(ev)
				if err == nil {
					err = q.Enqueue(ctx, queue.QueueDepositCredit, env)
				}
				if err != nil {
					log.Printf("❌ error queueing deposit event %s: %v", ev.TxHash, err)
				}
			}
		}
	}()
}

// StartIntentSweeper expires deposit intents that stayed pending past their
// window. Expiry is soft: an expired intent simply stops matching.
func StartIntentSweeper(ctx context.Context, db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			SweepExpiredIntents(db)
		}
	}()
}

func SweepExpiredIntents(db *gorm.DB) {
	result := db.Model(&models.DepositIntent{}).
		Where("status = ? AND expires_at < ?", models.DepositPending, time.Now().UTC()).
		Update("status", models.DepositFailed)

	if result.Error != nil {
		log.Println("❌ Failed to expire deposit intents:", result.Error)
	} else if result.RowsAffected > 0 {
		log.Printf("✅ Expired %d stale deposit intents\n", result.RowsAffected)
	}
}
