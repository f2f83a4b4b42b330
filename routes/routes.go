package routes

import (
	"bimbridge/config"
	"bimbridge/controllers/admin"
	"bimbridge/controllers/user"
	"bimbridge/controllers/webhook"
	"bimbridge/middlewares"

	"github.com/gofiber/fiber/v2"
)

func Setup(app *fiber.App, cfg *config.Config, userH *user.Handler, adminH *admin.Handler, webhookH *webhook.Handler) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Post("/deposit-intent", userH.CreateDepositIntent)
	api.Post("/withdrawal", userH.CreateWithdrawal)
	api.Get("/balance/:wallet", userH.GetBalance)
	api.Get("/withdrawals/:wallet", userH.GetWithdrawals)

	adminRoutes := app.Group("/admin", middlewares.AdminAuth(cfg.AdminJWTSecret))
	adminRoutes.Get("/withdrawals", adminH.ListWithdrawals)
	adminRoutes.Post("/withdrawals/:id/approve", adminH.Approve)
	adminRoutes.Post("/withdrawals/:id/reject", adminH.Reject)
	adminRoutes.Post("/withdrawals/:id/retry", adminH.Retry)

	hooks := app.Group("/webhook", middlewares.WebhookAuth(cfg.WebhookSecret, cfg.WebhookMaxSkew))
	hooks.Post("/chain-event", webhookH.ReceiveChainEvent)
}
