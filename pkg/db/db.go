package db

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/observability"
	"github.com/smallbiznis/studyquota/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(FromAppConfig),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc        fx.Lifecycle
	Cfg       Config
	ObsCfg    observability.Config
	Log       *zap.Logger
	GormLog   logger.GormLoggerConfig
	AppConfig config.Config
}

// New opens the configured database, instruments it and closes it on stop.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Cfg)
	if err != nil {
		return nil, err
	}

	conn, err := Open(dialector, p.Cfg, logger.NewGormLogger(p.Log, p.GormLog))
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Cfg.Name))); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}
	if p.ObsCfg.PrometheusEnabled {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          p.Cfg.Name,
			RefreshInterval: 15,
			Labels:          map[string]string{"service": p.AppConfig.AppName},
		})); err != nil {
			return nil, fmt.Errorf("register gorm prometheus: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("ping %s: %w", p.Cfg.Type, err)
			}
			p.Log.Info("database connected", zap.String("type", p.Cfg.Type), zap.String("name", p.Cfg.Name))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}

// Open connects with pool settings applied. It does not register plugins.
func Open(dialector gorm.Dialector, cfg Config, gormLog *logger.GormLogger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if gormLog != nil {
		gormCfg.Logger = gormLog
	}

	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}

	return conn, nil
}
