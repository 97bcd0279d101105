package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/common"
)

type exportReq struct {
	ChatIDs []string `json:"chat_ids" binding:"required"`
	Format  string   `json:"format"`
}

func (h *Handler) exportFormat(req exportReq) string {
	if req.Format != "" {
		return req.Format
	}
	return h.Cfg.ExportFormat
}

func exportContentType(format string) string {
	if strings.EqualFold(format, "jsonl") {
		return "application/x-ndjson; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// ExportChats streams the requested chats as a download, synchronously.
func (h *Handler) ExportChats(c *gin.Context) {
	var req exportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	format := h.exportFormat(req)
	write, err := h.Exports.Get(format)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "unknown export format")
		return
	}

	doc, err := h.ChatSvc.Export(c.Request.Context(), req.ChatIDs)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to export chats")
		return
	}

	c.Header("Content-Type", exportContentType(format))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="selected_chats.%s"`, format))
	c.Status(http.StatusOK)
	if err := write(c.Writer, doc); err != nil {
		// headers are gone; all we can do is log
		log.Printf("[ExportChats] write failed format=%s err=%v", format, err)
	}
}

// CreateExportJob enqueues an asynchronous bulk export and returns the job id.
// An Idempotency-Key header dedupes retries onto the existing job.
func (h *Handler) CreateExportJob(c *gin.Context) {
	var req exportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	format := h.exportFormat(req)
	if _, err := h.Exports.Get(format); err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "unknown export format")
		return
	}

	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "export queue unavailable")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	jobID, err := common.NewULID()
	if err != nil {
		log.Printf("[CreateExportJob] NewULID failed err=%v", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	idsRaw, err := json.Marshal(req.ChatIDs)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	j := &chat.ExportJob{
		ID:             jobID,
		ChatIDs:        string(idsRaw),
		Format:         format,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}

	created := true
	if idempoKeyPtr == nil {
		if err := h.ChatSvc.CreateExportJob(c.Request.Context(), j); err != nil {
			log.Printf("[CreateExportJob] CreateExportJob failed job_id=%s err=%v", jobID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
	} else {
		var job *chat.ExportJob
		job, created, err = h.ChatSvc.CreateExportJobOrGetExisting(c.Request.Context(), j)
		if err != nil {
			log.Printf("[CreateExportJob] CreateExportJobOrGetExisting failed job_id=%s key=%s err=%v", jobID, idempoKey, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
		j = job
	}

	// Enqueue only when a new job was created
	if created {
		if err := h.Rabbit.PublishExportJob(c.Request.Context(), j.ID); err != nil {
			log.Printf("[CreateExportJob] PublishExportJob failed job_id=%s err=%v", j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetExportJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetExportJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, chat.ErrJobNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":          j.ID,
			"format":      j.Format,
			"status":      j.Status,
			"result_path": j.ResultPath,
			"error":       j.Error,
			"created_at":  j.CreatedAt,
			"updated_at":  j.UpdatedAt,
		},
	})
}
