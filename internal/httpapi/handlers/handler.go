package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/common"
	"github.com/hqkang/chatvault/internal/config"
	"github.com/hqkang/chatvault/internal/store/rabbitmq"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *chat.Service
	Rabbit  *rabbitmq.Publisher // nil when the queue is unavailable; async export disabled
	Exports *chat.ExportRegistry
}

func NewHandler(db *gorm.DB, cfg config.Config, cache chat.Cache, rabbit *rabbitmq.Publisher) *Handler {
	repo := chat.NewRepo(db)
	svc := chat.NewService(repo, cache, cfg.DefaultPageSize, cfg.MaxPageSize)
	return &Handler{
		DB:      db,
		Cfg:     cfg,
		ChatSvc: svc,
		Rabbit:  rabbit,
		Exports: chat.DefaultExportRegistry(),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
