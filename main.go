package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bimbridge/config"
	admincontroller "bimbridge/controllers/admin"
	usercontroller "bimbridge/controllers/user"
	webhookcontroller "bimbridge/controllers/webhook"
	"bimbridge/database"
	"bimbridge/jobs"
	"bimbridge/providers/tonchain"
	"bimbridge/queue"
	"bimbridge/routes"
	"bimbridge/services"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file loaded, using environment as-is")
	}
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	q := queue.New(cfg.RedisAddr, cfg.RedisPassword)
	if err := q.Ping(ctx); err != nil {
		log.Fatalf("❌ Failed to connect to redis: %v", err)
	}
	log.Println("✅ Connected to redis")

	ledger := services.NewLedger(db)
	audit := services.NewAudit(db)
	notifier := services.NewHTTPMintNotifier(cfg.MintNotifyURL)
	reconciler := services.NewReconciler(db, cfg, ledger, audit, notifier)

	// Deposit scanning only needs the treasury address; the mnemonic gates
	// signing alone, so a read-only deployment still reconciles deposits.
	var signer services.ChainSigner
	if cfg.TreasuryAddress != "" {
		client, err := tonchain.Connect(ctx, cfg)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}

		jettonWallet, err := client.JettonWalletOf(ctx, cfg.JettonMaster)
		if err != nil {
			log.Printf("⚠️  Could not resolve treasury jetton wallet: %v", err)
		}
		reader := tonchain.NewReader(client, cfg.ReaderBatchSize, jettonWallet, cfg.JettonDecimals)
		jobs.StartDepositScanner(ctx, reader, q, cfg.DepositScanInterval)

		if cfg.TreasuryMnemonic != "" {
			s, err := tonchain.NewSignerFromMnemonic(client, cfg.TreasuryMnemonic, cfg.JettonMaster,
				cfg.JettonDecimals, cfg.ConfirmInterval*time.Duration(cfg.ConfirmAttempts))
			if err != nil {
				log.Fatalf("❌ %v", err)
			}
			signer = s
		} else {
			log.Println("⚠️  TREASURY_MNEMONIC not set; payouts disabled")
		}
	} else {
		log.Println("⚠️  TREASURY_ADDRESS not set; chain scanning and payouts disabled")
	}

	engine := services.NewPayoutEngine(db, cfg, ledger, audit, signer)

	depositPool := queue.NewPool(q, queue.QueueDepositCredit, cfg.DepositWorkers, cfg.MaxJobAttempts, cfg.RetryBackoffBase,
		func(ctx context.Context, env queue.Envelope) queue.Result {
			job, err := queue.DecodeDepositCredit(env)
			if err != nil {
				log.Printf("❌ [deposit worker] %v", err)
				return queue.Dead
			}
			if err := reconciler.ProcessEvent(ctx, job.Event); err != nil {
				log.Printf("❌ [deposit worker] event %s: %v", job.Event.TxHash, err)
				return queue.Retry
			}
			return queue.Done
		})
	depositPool.Start(ctx)

	payoutHandler := func(ctx context.Context, env queue.Envelope) queue.Result {
		job, err := queue.DecodePayout(env)
		if err != nil {
			log.Printf("❌ [payout worker] %v", err)
			return queue.Dead
		}
		if err := engine.Execute(ctx, job.WithdrawalID); err != nil {
			log.Printf("❌ [payout worker] withdrawal %d: %v", job.WithdrawalID, err)
			if services.RetryableFailure(err) {
				return queue.Retry
			}
			return queue.Dead
		}
		return queue.Done
	}
	if signer != nil {
		queue.NewPool(q, queue.QueueTonPayout, cfg.PayoutWorkers, cfg.MaxJobAttempts, cfg.RetryBackoffBase, payoutHandler).Start(ctx)
		queue.NewPool(q, queue.QueueJettonPayout, cfg.PayoutWorkers, cfg.MaxJobAttempts, cfg.RetryBackoffBase, payoutHandler).Start(ctx)
	}

	jobs.StartIntentSweeper(ctx, db, cfg.IntentSweepInterval)

	userH := usercontroller.NewHandler(db, cfg, ledger, engine, q)
	adminH := admincontroller.NewHandler(engine, q)
	webhookH := webhookcontroller.NewHandler(q)

	app := fiber.New()
	routes.Setup(app, cfg, userH, adminH, webhookH)

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	log.Println("Server running at", addr)

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Panicf("Failed to start server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Gracefully shutting down...")
	stop()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := q.Close(); err != nil {
		log.Printf("⚠️  Redis close: %v", err)
	}
	log.Println("Server exited cleanly")
}
