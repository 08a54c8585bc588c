package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type repo struct{}

func Provide() rewarddomain.RunRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *rewarddomain.RewardRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*rewarddomain.RewardRun, error) {
	var run rewarddomain.RewardRun
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]rewarddomain.RewardRun, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	var runs []rewarddomain.RewardRun
	err := db.WithContext(ctx).
		Omit("tables", "deltas").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
