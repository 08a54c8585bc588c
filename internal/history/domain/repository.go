package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Record is the persisted form of an Entry.
type Record struct {
	CreatorKey        string     `gorm:"primaryKey;type:varchar(191)"`
	B1Used            bool       `gorm:"not null;default:false"`
	B2Used            bool       `gorm:"not null;default:false"`
	B3Used            bool       `gorm:"not null;default:false"`
	Confirmed         bool       `gorm:"not null;default:false"`
	FirstRelationDate *time.Time `gorm:"type:date"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "creator_histories" }

// ToEntry converts a stored row into an entry.
func (r Record) ToEntry() Entry {
	var tiers TierSet
	if r.B1Used {
		tiers = tiers.With(1)
	}
	if r.B2Used {
		tiers = tiers.With(2)
	}
	if r.B3Used {
		tiers = tiers.With(3)
	}
	return Entry{
		CreatorKey:        r.CreatorKey,
		BonusTiersUsed:    tiers,
		Confirmed:         r.Confirmed,
		FirstRelationDate: r.FirstRelationDate,
		UpdatedAt:         r.UpdatedAt,
	}
}

// RecordFromEntry converts an entry into a storable row.
func RecordFromEntry(e Entry) Record {
	return Record{
		CreatorKey:        e.CreatorKey,
		B1Used:            e.BonusTiersUsed.Has(1),
		B2Used:            e.BonusTiersUsed.Has(2),
		B3Used:            e.BonusTiersUsed.Has(3),
		Confirmed:         e.Confirmed,
		FirstRelationDate: e.FirstRelationDate,
		UpdatedAt:         e.UpdatedAt,
	}
}

type Repository interface {
	List(ctx context.Context, db *gorm.DB) ([]Entry, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Entry, error)
	FindByKeys(ctx context.Context, db *gorm.DB, keys []string) ([]Entry, error)
	// Upsert merges entries into the stored rows, stamping them with now.
	Upsert(ctx context.Context, db *gorm.DB, entries []Entry, now time.Time) error
}

// TxStore is a Store that can join an open transaction.
type TxStore interface {
	Store
	WithTx(tx *gorm.DB) Store
}
