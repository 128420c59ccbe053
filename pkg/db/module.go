package db

import (
	"context"
	"time"

	"github.com/wunderling/tutorledger/internal/config"
	"github.com/wunderling/tutorledger/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module opens the gorm connection and manages its lifecycle.
var Module = fx.Module("db",
	fx.Provide(Open),
)

// Open builds the gorm handle from configuration.
func Open(lc fx.Lifecycle, cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}
