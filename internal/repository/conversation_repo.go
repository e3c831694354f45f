package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/tradechat/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateIfAbsent inserts the conversation unless one with the same pair key
// exists. It reports whether this call inserted the row; conv.Id is only set
// when it did.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (bool, error) {
	return r.CreateIfAbsentWithTx(ctx, r.db, conv)
}

// CreateIfAbsentWithTx is CreateIfAbsent within tx. The row only becomes
// visible to others when tx commits.
func (r *ConversationRepo) CreateIfAbsentWithTx(ctx context.Context, tx *gorm.DB, conv *entity.Conversation) (bool, error) {
	now := entity.NowUnixMilli()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoNothing: true,
	}).Create(conv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetById gets a conversation by id, nil when absent
func (r *ConversationRepo) GetById(ctx context.Context, id int64) (*entity.Conversation, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// GetByPairKey gets the conversation of an unordered party pair, nil when absent
func (r *ConversationRepo) GetByPairKey(ctx context.Context, pairKey string) (*entity.Conversation, error) {
	return r.first(r.db.WithContext(ctx).Where("pair_key = ?", pairKey))
}

// GetByIdForUpdate reads the conversation inside tx and holds its row lock
// until the transaction ends. Appends to one conversation serialize here.
func (r *ConversationRepo) GetByIdForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*entity.Conversation, error) {
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// GetByPairKeyForUpdate is GetByIdForUpdate keyed by the party pair
func (r *ConversationRepo) GetByPairKeyForUpdate(ctx context.Context, tx *gorm.DB, pairKey string) (*entity.Conversation, error) {
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("pair_key = ?", pairKey))
}

func (r *ConversationRepo) first(q *gorm.DB) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := q.First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByParty lists the conversations a party belongs to, most recent activity first
func (r *ConversationRepo) ListByParty(ctx context.Context, partyId string, limit, offset int) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	q := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", partyId, partyId).
		Order("last_message_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

// Update updates conversation columns
func (r *ConversationRepo) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.UpdateWithTx(ctx, r.db, id, updates)
}

// UpdateWithTx updates conversation columns within tx
func (r *ConversationRepo) UpdateWithTx(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	updates["updated_at"] = entity.NowUnixMilli()
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}
