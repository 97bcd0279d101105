package chat

import "time"

type Session struct {
	ChatID       string    `gorm:"column:chat_id;primaryKey;type:varchar(26)" json:"chat_id"`
	Model        string    `gorm:"type:varchar(64)" json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `gorm:"not null;default:0" json:"message_count"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message identity is the composite (id, chat_id); ids are per-chat, not global.
// OrderID is a fractional sort key: inserts between neighbours take the midpoint,
// so no existing row is ever renumbered.
type Message struct {
	ID         int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ChatID     string     `gorm:"column:chat_id;primaryKey;type:varchar(26);index:idx_chat_msg_chat_id;index:idx_chat_msg_chat_order,priority:1" json:"chat_id"`
	Role       string     `gorm:"type:varchar(16);not null" json:"role"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	TokenCount int        `gorm:"not null" json:"token_count"`
	OrderID    float64    `gorm:"column:order_id;not null;index:idx_chat_msg_chat_order,priority:2" json:"order_id"`
	CreatedAt  time.Time  `json:"created_at"`
	EditedAt   *time.Time `gorm:"column:updated_at" json:"updated_at,omitempty"`

	// Reserved tombstone flag; nothing sets or filters on it yet.
	IsPurged bool `gorm:"not null;default:false" json:"-"`
}

func (Message) TableName() string { return "chat_messages" }
