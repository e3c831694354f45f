package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/tradechat/internal/entity"
	"gorm.io/gorm"
)

// PartyRepo reads the party directory
type PartyRepo struct {
	db *gorm.DB
}

// NewPartyRepo creates a new PartyRepo
func NewPartyRepo(db *gorm.DB) *PartyRepo {
	return &PartyRepo{db: db}
}

// Create inserts a party; used to seed local directories
func (r *PartyRepo) Create(ctx context.Context, party *entity.Party) error {
	return r.db.WithContext(ctx).Create(party).Error
}

// GetById gets a party by id, nil when absent
func (r *PartyRepo) GetById(ctx context.Context, id string) (*entity.Party, error) {
	var party entity.Party
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&party).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &party, nil
}

// GetByIds gets parties by ids, keyed by id
func (r *PartyRepo) GetByIds(ctx context.Context, ids []string) (map[string]*entity.Party, error) {
	result := make(map[string]*entity.Party, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var parties []*entity.Party
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&parties).Error; err != nil {
		return nil, err
	}
	for _, p := range parties {
		result[p.Id] = p
	}
	return result, nil
}
