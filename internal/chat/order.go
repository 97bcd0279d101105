package chat

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

const (
	// orderKeyBase is the key given to the first message of an empty chat.
	orderKeyBase = 1000.0
	// orderKeyGap is the spacing used when inserting at the head or tail.
	orderKeyGap = 1000.0
)

// allocateOrderID computes the sort key for a message inserted after the given
// anchor (nil anchor = head of the chat). It runs inside the caller's
// transaction and never touches existing rows:
//
//	head of empty chat  -> orderKeyBase
//	head otherwise      -> min(order_id) - gap
//	after last message  -> anchor + gap
//	between two rows    -> midpoint of anchor and its successor
//
// Repeated midpoint insertion at the same spot halves the gap each time and
// eventually exhausts float precision; RenormalizeOrderKeys re-spaces a chat
// when that happens.
func allocateOrderID(tx *gorm.DB, chatID string, after *int64) (float64, error) {
	if after == nil {
		var min sql.NullFloat64
		if err := tx.Model(&Message{}).
			Where("chat_id = ?", chatID).
			Select("MIN(order_id)").
			Scan(&min).Error; err != nil {
			return 0, err
		}
		if !min.Valid {
			return orderKeyBase, nil
		}
		return min.Float64 - orderKeyGap, nil
	}

	var anchor Message
	if err := tx.Where("chat_id = ? AND id = ?", chatID, *after).
		First(&anchor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAnchorNotFound
		}
		return 0, err
	}

	var next sql.NullFloat64
	if err := tx.Model(&Message{}).
		Where("chat_id = ? AND order_id > ?", chatID, anchor.OrderID).
		Select("MIN(order_id)").
		Scan(&next).Error; err != nil {
		return 0, err
	}
	if !next.Valid {
		return anchor.OrderID + orderKeyGap, nil
	}
	return anchor.OrderID + (next.Float64-anchor.OrderID)/2, nil
}

// RenormalizeOrderKeys reassigns evenly spaced keys (gap, 2*gap, ...) to a
// chat's messages in their current order, inside one transaction. Maintenance
// operation for chats whose keys have converged through repeated midpoint
// insertion.
func (r *Repo) RenormalizeOrderKeys(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Session{}).
			Where("chat_id = ?", chatID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrSessionNotFound
		}

		var msgs []Message
		if err := tx.Select("id").
			Where("chat_id = ?", chatID).
			Order("order_id ASC, id ASC").
			Find(&msgs).Error; err != nil {
			return err
		}

		for i, m := range msgs {
			if err := tx.Model(&Message{}).
				Where("id = ? AND chat_id = ?", m.ID, chatID).
				UpdateColumn("order_id", orderKeyGap*float64(i+1)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
