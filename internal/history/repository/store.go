package repository

import (
	"context"

	"github.com/smallbiznis/creatorpay/internal/clock"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the database-backed history store.
type Store struct {
	db   *gorm.DB
	repo  historydomain.Repository
	log   *zap.Logger
	clock clock.Clock
}

type StoreParams struct {
	fx.In

	DB    *gorm.DB
	Repo  historydomain.Repository
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

func NewStore(p StoreParams) *Store {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Store{
		db:    p.DB,
		repo:  p.Repo,
		log:   p.Log.Named("history.repository"),
		clock: c,
	}
}

func (s *Store) Load(ctx context.Context) ([]historydomain.Entry, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Store) Save(ctx context.Context, entries []historydomain.Entry) error {
	if err := s.repo.Upsert(ctx, s.db, entries, s.clock.Now()); err != nil {
		s.log.Error("failed to save history", zap.Int("entries", len(entries)), zap.Error(err))
		return err
	}
	s.log.Debug("history saved", zap.Int("entries", len(entries)))
	return nil
}

// LoadKeys loads only the given creators.
func (s *Store) LoadKeys(ctx context.Context, keys []string) ([]historydomain.Entry, error) {
	return s.repo.FindByKeys(ctx, s.db, keys)
}

// Find returns one creator's entry, or nil when it was never observed.
func (s *Store) Find(ctx context.Context, key string) (*historydomain.Entry, error) {
	return s.repo.FindByKey(ctx, s.db, key)
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) historydomain.Store {
	return &Store{db: tx, repo: s.repo, log: s.log, clock: s.clock}
}
