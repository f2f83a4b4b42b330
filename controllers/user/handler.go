package user

import (
	"bimbridge/config"
	"bimbridge/queue"
	"bimbridge/services"

	"gorm.io/gorm"
)

type Handler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Ledger *services.Ledger
	Engine *services.PayoutEngine
	Queue  *queue.Queue
}

func NewHandler(db *gorm.DB, cfg *config.Config, ledger *services.Ledger, engine *services.PayoutEngine, q *queue.Queue) *Handler {
	return &Handler{DB: db, Cfg: cfg, Ledger: ledger, Engine: engine, Queue: q}
}
