package db

import (
	"context"
	"time"

	"github.com/smallbiznis/creatorpay/internal/config"
	obslogger "github.com/smallbiznis/creatorpay/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Dialector gorm.Dialector
	Log       *zap.Logger
}

// New opens the database, attaches tracing and pool metrics, and closes the
// pool on shutdown.
func New(p Params) (*gorm.DB, error) {
	log := p.Log.Named("database")

	loggerCfg := obslogger.DefaultGormLoggerConfig()
	if !p.Config.IsProduction() {
		loggerCfg.Level = gormlogger.Info
	}

	var (
		conn *gorm.DB
		err  error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = gorm.Open(p.Dialector, &gorm.Config{
			Logger:         obslogger.NewGormLogger(p.Log, loggerCfg),
			TranslateError: true,
		})
		if err == nil {
			break
		}
		log.Warn("database not ready, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithoutQueryVariables())); err != nil {
		return nil, err
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Config.DBName,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(p.Config.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(p.Config.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(p.Config.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(p.Config.DBConnMaxIdleTime) * time.Second)

	log.Info("database connected", zap.String("type", p.Config.DBType))
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("closing database pool")
			return sqlDB.Close()
		},
	})
	return conn, nil
}
