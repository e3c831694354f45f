package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/tradechat/internal/entity"
	"gorm.io/gorm"
)

// ErrAttachmentUnavailable is returned when a pending attachment cannot be
// claimed: it does not exist, belongs to another uploader, or is already
// owned by a message.
var ErrAttachmentUnavailable = errors.New("attachment unavailable")

// AttachmentRepo is the repository for attachment references
type AttachmentRepo struct {
	db *gorm.DB
}

// NewAttachmentRepo creates a new AttachmentRepo
func NewAttachmentRepo(db *gorm.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

// Create inserts a pending attachment reference
func (r *AttachmentRepo) Create(ctx context.Context, att *entity.Attachment) error {
	if att.CreatedAt == 0 {
		att.CreatedAt = entity.NowUnixMilli()
	}
	return r.db.WithContext(ctx).Create(att).Error
}

// CreateBatchWithTx inserts attachments already bound to a message
func (r *AttachmentRepo) CreateBatchWithTx(ctx context.Context, tx *gorm.DB, atts []*entity.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	now := entity.NowUnixMilli()
	for _, a := range atts {
		if a.CreatedAt == 0 {
			a.CreatedAt = now
		}
	}
	return tx.WithContext(ctx).Create(&atts).Error
}

// ClaimWithTx binds pending attachments owned by uploaderId to messageId,
// positioned from startPos in the given order. Every id must be claimable or
// ErrAttachmentUnavailable is returned and the caller must roll back.
func (r *AttachmentRepo) ClaimWithTx(ctx context.Context, tx *gorm.DB, ids []int64, uploaderId string, messageId int64, startPos int) error {
	for i, id := range ids {
		res := tx.WithContext(ctx).
			Model(&entity.Attachment{}).
			Where("id = ? AND uploader_id = ? AND message_id = ?", id, uploaderId, 0).
			Updates(map[string]interface{}{
				"message_id": messageId,
				"position":   startPos + i,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrAttachmentUnavailable
		}
	}
	return nil
}

// ListByMessageWithTx lists a message's attachments within tx, ordered by position
func (r *AttachmentRepo) ListByMessageWithTx(ctx context.Context, tx *gorm.DB, messageId int64) ([]*entity.Attachment, error) {
	var atts []*entity.Attachment
	err := tx.WithContext(ctx).
		Where("message_id = ?", messageId).
		Order("position ASC").
		Find(&atts).Error
	if err != nil {
		return nil, err
	}
	return atts, nil
}

// CountPendingByIds counts how many of ids are pending references owned by uploaderId
func (r *AttachmentRepo) CountPendingByIds(ctx context.Context, ids []int64, uploaderId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Attachment{}).
		Where("id IN ? AND uploader_id = ? AND message_id = ?", ids, uploaderId, 0).
		Count(&count).Error
	return count, err
}
