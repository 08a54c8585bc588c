package repository

import (
	"context"
	"errors"
	"time"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const keyChunkSize = 500

type repo struct{}

func Provide() historydomain.Repository {
	return &repo{}
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]historydomain.Entry, error) {
	var rows []historydomain.Record
	if err := db.WithContext(ctx).Order("creator_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*historydomain.Entry, error) {
	key = historydomain.NormalizeKey(key)
	if key == "" {
		return nil, historydomain.ErrEmptyKey
	}

	var row historydomain.Record
	err := db.WithContext(ctx).Where("creator_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entry := row.ToEntry()
	return &entry, nil
}

func (r *repo) FindByKeys(ctx context.Context, db *gorm.DB, keys []string) ([]historydomain.Entry, error) {
	var rows []historydomain.Record
	for start := 0; start < len(keys); start += keyChunkSize {
		end := start + keyChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		var chunk []historydomain.Record
		if err := db.WithContext(ctx).Where("creator_key IN ?", keys[start:end]).Find(&chunk).Error; err != nil {
			return nil, err
		}
		rows = append(rows, chunk...)
	}
	return toEntries(rows), nil
}

// Upsert merges entries into the stored rows. Stored facts are read first and
// merged in, so a stale writer can add facts but never remove them.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entries []historydomain.Entry, now time.Time) error {
	incoming := historydomain.NewSnapshot(entries...)
	if len(incoming) == 0 {
		return nil
	}

	keys := make([]string, 0, len(incoming))
	for key := range incoming {
		keys = append(keys, key)
	}
	stored, err := r.FindByKeys(ctx, db, keys)
	if err != nil {
		return err
	}
	merged := historydomain.NewSnapshot(stored...)
	merged.MergeSnapshot(incoming)

	now = now.UTC()
	rows := make([]historydomain.Record, 0, len(merged))
	for _, entry := range merged.Entries() {
		row := historydomain.RecordFromEntry(entry)
		row.CreatedAt = now
		row.UpdatedAt = now
		rows = append(rows, row)
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "creator_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"b1_used", "b2_used", "b3_used", "confirmed", "first_relation_date", "updated_at",
		}),
	}).CreateInBatches(&rows, keyChunkSize).Error
}

func toEntries(rows []historydomain.Record) []historydomain.Entry {
	out := make([]historydomain.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToEntry())
	}
	return out
}
