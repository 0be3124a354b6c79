package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is given to conversations created without one.
const DefaultTitle = "New Conversation"

// RecentQueryKeep bounds the per-user recent-query list.
const RecentQueryKeep = 10

type Conversation struct {
	ConversationID string    `gorm:"type:varchar(26);primaryKey" json:"conversation_id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	Title          string    `gorm:"type:varchar(255);not null" json:"title"`
	LastUpdated    time.Time `gorm:"index;not null" json:"last_updated"`
	IsFavorite     bool      `gorm:"not null;default:false" json:"is_favorite"`
	Tags           string    `gorm:"type:varchar(255)" json:"tags,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Message rows are append-only; nothing updates or deletes them.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	ConversationID string    `gorm:"type:varchar(26);index;not null" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

// RecentQuery holds the most recent occurrence of each distinct query text a
// user has asked. Re-asking touches the timestamp instead of adding a row;
// the list is pruned to RecentQueryKeep rows after every insert.
type RecentQuery struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	Query          string    `gorm:"type:text;not null" json:"query"`
	Timestamp      time.Time `gorm:"not null" json:"timestamp"`
	ConversationID string    `gorm:"type:varchar(26)" json:"conversation_id"`
}

func (RecentQuery) TableName() string { return "recent_queries" }

// FavoriteQuery is distinct by (user, query) and unbounded. Its lifecycle is
// independent of RecentQuery: a favorited query stays after aging out there.
type FavoriteQuery struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Query     string    `gorm:"type:text;not null" json:"query"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

func (FavoriteQuery) TableName() string { return "favorite_queries" }

// ConversationSummary is the recent-conversation listing row. LastQuery is
// derived from the transcript, not stored.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	LastUpdated    time.Time `json:"last_updated"`
	IsFavorite     bool      `json:"is_favorite"`
	LastQuery      string    `json:"last_query"`
}

type UserStats struct {
	TotalConversations int64            `json:"total_conversations"`
	TotalMessages      int64            `json:"total_messages"`
	MessagesByRole     map[string]int64 `json:"messages_by_role"`
	RecentActivity     map[string]int64 `json:"recent_activity"`
}
