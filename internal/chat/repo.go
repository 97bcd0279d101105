package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, chatID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns session metadata newest first.
func (r *Repo) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// InsertMessage adds a message positioned after the given anchor (nil = head)
// and bumps the session's message_count, all in one transaction. The count can
// never be observed incremented without the row existing.
func (r *Repo) InsertMessage(ctx context.Context, chatID, role, content string, after *int64) (*Message, error) {
	m := &Message{
		ChatID:     chatID,
		Role:       role,
		Content:    content,
		TokenCount: TokenCount(content),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Session{}).
			Where("chat_id = ?", chatID).
			UpdateColumn("message_count", gorm.Expr("message_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}

		orderID, err := allocateOrderID(tx, chatID, after)
		if err != nil {
			return err
		}
		m.OrderID = orderID

		// ids are allocated per chat, not by the database
		var maxID sql.NullInt64
		if err := tx.Model(&Message{}).
			Where("chat_id = ?", chatID).
			Select("MAX(id)").
			Scan(&maxID).Error; err != nil {
			return err
		}
		m.ID = maxID.Int64 + 1

		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessageContent overwrites content and token_count for (id, chat_id)
// and stamps updated_at. order_id, created_at and message_count are untouched.
func (r *Repo) UpdateMessageContent(ctx context.Context, chatID string, id int64, content string) error {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND chat_id = ?", id, chatID).
		Updates(map[string]any{
			"content":     content,
			"token_count": TokenCount(content),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessage removes (id, chat_id) and decrements message_count with a
// floor at zero, in one transaction. Surviving rows keep their ids and order
// keys.
func (r *Repo) DeleteMessage(ctx context.Context, chatID string, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND chat_id = ?", id, chatID).Delete(&Message{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMessageNotFound
		}
		return tx.Model(&Session{}).
			Where("chat_id = ?", chatID).
			UpdateColumn("message_count",
				gorm.Expr("CASE WHEN message_count > 0 THEN message_count - 1 ELSE 0 END")).
			Error
	})
}

// ListMessagesPage returns one offset window of a chat's messages ordered by
// order_id with id as the deterministic tie-break.
func (r *Repo) ListMessagesPage(ctx context.Context, chatID string, offset, limit int) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("order_id ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListAllMessages returns the complete ordered message set of a chat (export path).
func (r *Repo) ListAllMessages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("order_id ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Export job CRUD

func (r *Repo) CreateExportJob(ctx context.Context, job *ExportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetExportJobByID(ctx context.Context, id string) (*ExportJob, error) {
	var j ExportJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateExportJobRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&ExportJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkExportJobSucceeded(ctx context.Context, id string, resultPath string) error {
	return r.db.WithContext(ctx).Model(&ExportJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      JobSucceeded,
			"result_path": resultPath,
			"error":       nil,
		}).Error
}

func (r *Repo) MarkExportJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&ExportJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      JobFailed,
			"error":       errMsg,
			"result_path": nil,
		}).Error
}

func (r *Repo) GetExportJobByIdempotencyKey(ctx context.Context, key string) (*ExportJob, error) {
	var j ExportJob
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

// CreateExportJobOrGetExisting tries to create a job, but if the idempotency
// key already exists it returns the existing job instead.
func (r *Repo) CreateExportJobOrGetExisting(ctx context.Context, job *ExportJob) (*ExportJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetExportJobByIdempotencyKey(ctx, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrJobNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
