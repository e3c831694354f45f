package repository

import (
	"context"

	"github.com/mbeoliero/tradechat/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts a message within tx. CreatedAt must already be assigned
// by the caller under the conversation row lock; attachments are written
// separately.
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Create(msg).Error
}

// ListSince returns up to limit messages of a conversation created strictly
// after since, ordered by (created_at, id)
func (r *MessageRepo) ListSince(ctx context.Context, conversationId, since int64, limit int) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments", orderByPosition).
		Where("conversation_id = ? AND created_at > ?", conversationId, since).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// LatestByConversations returns the newest message of each conversation
func (r *MessageRepo) LatestByConversations(ctx context.Context, conversationIds []int64) (map[int64]*entity.Message, error) {
	result := make(map[int64]*entity.Message, len(conversationIds))
	if len(conversationIds) == 0 {
		return result, nil
	}

	latestIds := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIds).
		Group("conversation_id")

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments", orderByPosition).
		Where("id IN (?)", latestIds).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		result[m.ConversationId] = m
	}
	return result, nil
}

// MarkRead flips unread messages addressed to receiverId in a conversation
// and returns the flipped ids in ascending order. A nil ids marks all of
// them; otherwise only the listed ids that match are touched. The candidate
// rows stay locked until the update commits, so concurrent calls never
// report the same id twice.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationId int64, receiverId string, ids []int64) ([]int64, error) {
	var flipped []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&entity.Message{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationId, receiverId, false)
		if ids != nil {
			q = q.Where("id IN ?", ids)
		}
		if err := q.Order("id ASC").Pluck("id", &flipped).Error; err != nil {
			return err
		}
		if len(flipped) == 0 {
			return nil
		}

		return tx.Model(&entity.Message{}).
			Where("id IN ?", flipped).
			Updates(map[string]interface{}{
				"is_read": true,
				"read_at": entity.NowUnixMilli(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}

// CountUnread counts unread messages addressed to receiverId across all conversations
func (r *MessageRepo) CountUnread(ctx context.Context, receiverId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("receiver_id = ? AND is_read = ?", receiverId, false).
		Count(&count).Error
	return count, err
}

type conversationCount struct {
	ConversationId int64
	Cnt            int64
}

// CountUnreadByConversations counts unread messages addressed to receiverId per conversation
func (r *MessageRepo) CountUnreadByConversations(ctx context.Context, receiverId string, conversationIds []int64) (map[int64]int64, error) {
	result := make(map[int64]int64, len(conversationIds))
	if len(conversationIds) == 0 {
		return result, nil
	}

	var rows []conversationCount
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Select("conversation_id, COUNT(*) AS cnt").
		Where("receiver_id = ? AND is_read = ?", receiverId, false).
		Where("conversation_id IN ?", conversationIds).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ConversationId] = row.Cnt
	}
	return result, nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
