package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Default group templates. "@user" is replaced with a mention of the member.
const (
	DefaultWelcomeMessage = "Welcome to the group, @user!"
	DefaultGoodbyeMessage = "Goodbye, @user!"
	DefaultMaxWarns       = 3
)

// GroupPolicy holds per-group settings. Groups without a row are treated as
// unconfigured and receive no welcome, goodbye or chat behavior.
type GroupPolicy struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	WelcomeMessage string    `db:"welcome_message"`
	GoodbyeMessage string    `db:"goodbye_message"`
	AntiLink       bool      `db:"anti_link"`
	AntiSpam       bool      `db:"anti_spam"`
	ChatEnabled    bool      `db:"chat_enabled"`
	MaxWarns       int       `db:"max_warns"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// NewGroupPolicy returns a policy with the default templates and limits.
func NewGroupPolicy(id string) *GroupPolicy {
	return &GroupPolicy{
		ID:             id,
		WelcomeMessage: DefaultWelcomeMessage,
		GoodbyeMessage: DefaultGoodbyeMessage,
		MaxWarns:       DefaultMaxWarns,
	}
}

// WarnReason is one recorded warning.
type WarnReason struct {
	Reason string    `json:"reason"`
	Date   time.Time `json:"date"`
}

// WarnReasons is stored as a JSON array.
type WarnReasons []WarnReason

// Value implements driver.Valuer.
func (w WarnReasons) Value() (driver.Value, error) {
	if w == nil {
		return "[]", nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode warn reasons: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (w *WarnReasons) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*w = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported warn reasons type %T", src)
	}
	if len(raw) == 0 {
		*w = nil
		return nil
	}
	return json.Unmarshal(raw, w)
}

// UserRecord tracks per-user moderation state and activity.
type UserRecord struct {
	JID          string      `db:"jid"`
	Name         string      `db:"name"`
	Warns        int         `db:"warns"`
	WarnReasons  WarnReasons `db:"warn_reasons"`
	CommandCount int         `db:"command_count"`
	LastSeen     time.Time   `db:"last_seen"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

// SessionRecord is an opaque snapshot of the connection credentials.
type SessionRecord struct {
	ID        string    `db:"id"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Chat roles stored in history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatMessage is one turn of the AI conversation history for a chat.
type ChatMessage struct {
	ID        int64     `db:"id"`
	ChatID    string    `db:"chat_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	Timestamp time.Time `db:"timestamp"`
}
