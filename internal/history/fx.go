package history

import (
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/smallbiznis/creatorpay/internal/history/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("history.repository",
	fx.Provide(repository.Provide),
	fx.Provide(
		repository.NewStore,
		func(s *repository.Store) historydomain.Store { return s },
	),
)
