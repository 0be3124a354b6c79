package chat

import (
	"context"
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

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// AppendMessage inserts the message, bumps the owning conversation's
// last_updated, and for user-role messages upserts the recent-query row and
// prunes the list, all in one transaction. A reader never sees the message
// without the conversation bump.
func (r *Repo) AppendMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		if err := tx.Model(&Conversation{}).
			Where("conversation_id = ?", m.ConversationID).
			Update("last_updated", now).Error; err != nil {
			return err
		}

		if m.Role != RoleUser {
			return nil
		}
		return upsertRecentQuery(tx, m.UserID, m.Content, m.ConversationID, now)
	})
}

func upsertRecentQuery(tx *gorm.DB, userID uint64, query, conversationID string, now time.Time) error {
	var existing RecentQuery
	err := tx.Where("user_id = ? AND query = ?", userID, query).First(&existing).Error
	if err == nil {
		// re-asked: promote in place
		return tx.Model(&RecentQuery{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"timestamp":       now,
				"conversation_id": conversationID,
			}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := tx.Create(&RecentQuery{
		UserID:         userID,
		Query:          query,
		Timestamp:      now,
		ConversationID: conversationID,
	}).Error; err != nil {
		return err
	}

	// keep only the RecentQueryKeep most recent rows for this user
	return tx.Exec(`
		DELETE FROM recent_queries
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM recent_queries
				WHERE user_id = ?
				ORDER BY timestamp DESC, id DESC
				LIMIT ?
			) keep
		)`, userID, userID, RecentQueryKeep).Error
}

func (r *Repo) ListConversationMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the newest messages of a conversation,
// newest first, for prompt-context assembly.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) ListRecentConversations(ctx context.Context, userID uint64, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []ConversationSummary
	err := r.db.WithContext(ctx).Raw(`
		SELECT c.conversation_id, c.title, c.last_updated, c.is_favorite,
		       COALESCE((
		           SELECT m.content FROM chat_messages m
		           WHERE m.conversation_id = c.conversation_id AND m.role = ?
		           ORDER BY m.timestamp DESC, m.id DESC
		           LIMIT 1
		       ), '') AS last_query
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY c.last_updated DESC
		LIMIT ?`, RoleUser, userID, limit).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListFavoriteConversations narrows the recent listing to favorites.
func (r *Repo) ListFavoriteConversations(ctx context.Context, userID uint64, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []ConversationSummary
	err := r.db.WithContext(ctx).Raw(`
		SELECT c.conversation_id, c.title, c.last_updated, c.is_favorite,
		       COALESCE((
		           SELECT m.content FROM chat_messages m
		           WHERE m.conversation_id = c.conversation_id AND m.role = ?
		           ORDER BY m.timestamp DESC, m.id DESC
		           LIMIT 1
		       ), '') AS last_query
		FROM conversations c
		WHERE c.user_id = ? AND c.is_favorite = ?
		ORDER BY c.last_updated DESC
		LIMIT ?`, RoleUser, userID, true, limit).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleFavorite flips the flag and bumps last_updated. Returns whether a row
// was affected.
func (r *Repo) ToggleFavorite(ctx context.Context, conversationID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ?", conversationID).
		Updates(map[string]any{
			"is_favorite":  gorm.Expr("NOT is_favorite"),
			"last_updated": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) UpdateTitle(ctx context.Context, conversationID, title string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ?", conversationID).
		Updates(map[string]any{
			"title":        title,
			"last_updated": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddFavoriteQuery inserts unless the (user, query) pair already exists.
// Returns whether a row was inserted.
func (r *Repo) AddFavoriteQuery(ctx context.Context, userID uint64, query string) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&FavoriteQuery{}).
			Where("user_id = ? AND query = ?", userID, query).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return nil
		}
		inserted = true
		return tx.Create(&FavoriteQuery{
			UserID:    userID,
			Query:     query,
			Timestamp: time.Now(),
		}).Error
	})
	return inserted, err
}

func (r *Repo) RemoveFavoriteQuery(ctx context.Context, userID uint64, query string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND query = ?", userID, query).
		Delete(&FavoriteQuery{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) ListFavoriteQueries(ctx context.Context, userID uint64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []string
	err := r.db.WithContext(ctx).Model(&FavoriteQuery{}).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Pluck("query", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListRecentQueries(ctx context.Context, userID uint64, limit int) ([]RecentQuery, error) {
	if limit <= 0 || limit > RecentQueryKeep {
		limit = RecentQueryKeep
	}
	var out []RecentQuery
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserStats recomputes all aggregates from the transcript on every call.
func (r *Repo) UserStats(ctx context.Context, userID uint64) (*UserStats, error) {
	stats := &UserStats{
		MessagesByRole: map[string]int64{},
		RecentActivity: map[string]int64{},
	}

	if err := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalConversations).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}

	type roleCount struct {
		Role string
		N    int64
	}
	var byRole []roleCount
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Select("role, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("role").
		Scan(&byRole).Error; err != nil {
		return nil, err
	}
	for _, rc := range byRole {
		stats.MessagesByRole[rc.Role] = rc.N
	}

	type dayCount struct {
		Day string
		N   int64
	}
	cutoff := time.Now().AddDate(0, 0, -7)
	var byDay []dayCount
	if err := r.db.WithContext(ctx).Raw(`
		SELECT DATE(timestamp) AS day, COUNT(*) AS n
		FROM chat_messages
		WHERE user_id = ? AND timestamp > ?
		GROUP BY DATE(timestamp)
		ORDER BY day`, userID, cutoff).Scan(&byDay).Error; err != nil {
		return nil, err
	}
	for _, dc := range byDay {
		stats.RecentActivity[dc.Day] = dc.N
	}

	return stats, nil
}
