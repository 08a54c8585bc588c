package runlock

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"go.uber.org/fx"
)

// NewLocker picks Redis when a client is available.
func NewLocker(client *redis.Client, c clock.Clock) Locker {
	if client == nil {
		return NewLocalLocker(c)
	}
	return NewRedisLocker(client)
}

var Module = fx.Module("run.lock",
	fx.Provide(NewLocker),
)
