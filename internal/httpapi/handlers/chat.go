package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/common"
)

type createChatReq struct {
	Model string `json:"model"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), req.Model)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create chat")
		return
	}
	common.OK(c, gin.H{"chat_id": sess.ChatID})
}

func (h *Handler) ListChats(c *gin.Context) {
	sessions, err := h.ChatSvc.ListSessions(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list chats")
		return
	}
	common.OK(c, gin.H{"chats": sessions})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	chatID := c.Param("chat_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.Query("page_size"))
	if size <= 0 || size > h.Cfg.MaxPageSize {
		size = h.Cfg.DefaultPageSize
	}

	totalPages, err := h.ChatSvc.TotalPages(c.Request.Context(), chatID, size)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	// the reader returns empty slices past the end; clamping is on us
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	msgs, err := h.ChatSvc.Page(c.Request.Context(), chatID, page, size)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	common.OK(c, gin.H{
		"chat_id":     chatID,
		"page":        page,
		"page_size":   size,
		"total_pages": totalPages,
		"messages":    msgs,
	})
}

type insertMessageReq struct {
	Role           string `json:"role" binding:"required"`
	Content        string `json:"content" binding:"required"`
	AfterMessageID *int64 `json:"after_message_id"`
}

func (h *Handler) InsertChatMessage(c *gin.Context) {
	chatID := c.Param("chat_id")

	var req insertMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	m, err := h.ChatSvc.InsertMessage(c.Request.Context(), chatID, req.Role, req.Content, req.AfterMessageID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSessionNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "chat not found")
		case errors.Is(err, chat.ErrAnchorNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "after_message_id not found in chat")
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to insert message")
		}
		return
	}
	common.OK(c, gin.H{"message": m})
}

type updateMessageReq struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) UpdateChatMessage(c *gin.Context) {
	chatID := c.Param("chat_id")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid message id")
		return
	}

	var req updateMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.ChatSvc.UpdateMessage(c.Request.Context(), chatID, id, req.Content); err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "message not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to update message")
		return
	}
	common.OK(c, gin.H{"chat_id": chatID, "id": id})
}

func (h *Handler) DeleteChatMessage(c *gin.Context) {
	chatID := c.Param("chat_id")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid message id")
		return
	}

	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), chatID, id); err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "message not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete message")
		return
	}
	common.OK(c, gin.H{"chat_id": chatID, "id": id})
}

// RenormalizeChat re-spaces a chat's order keys. Maintenance endpoint for
// chats degraded by repeated same-point insertion.
func (h *Handler) RenormalizeChat(c *gin.Context) {
	chatID := c.Param("chat_id")

	if err := h.ChatSvc.Renormalize(c.Request.Context(), chatID); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to renormalize chat")
		return
	}
	common.OK(c, gin.H{"chat_id": chatID})
}
