package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/common"
	"github.com/hqkang/chatvault/internal/config"
	"github.com/hqkang/chatvault/internal/httpapi/handlers"
	"github.com/hqkang/chatvault/internal/httpapi/middleware"
	"github.com/hqkang/chatvault/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, cache chat.Cache, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, cache, rabbit)

	r.GET("/ping", h.Ping)

	// chats and messages
	r.GET("/chats", h.ListChats)
	r.POST("/chats", h.CreateChat)
	r.GET("/chats/:chat_id/messages", h.ListChatMessages)
	r.POST("/chats/:chat_id/messages", h.InsertChatMessage)
	r.PUT("/chats/:chat_id/messages/:id", h.UpdateChatMessage)
	r.DELETE("/chats/:chat_id/messages/:id", h.DeleteChatMessage)
	r.POST("/chats/:chat_id/renormalize", h.RenormalizeChat)

	// export: synchronous download + async jobs
	r.POST("/export", h.ExportChats)
	r.POST("/exports", h.CreateExportJob)
	r.GET("/exports/:job_id", h.GetExportJob)

	return r
}
