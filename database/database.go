package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doguser/NickWatchBot/configuration"
	"github.com/doguser/NickWatchBot/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *configuration.Config) (*gorm.DB, error) {
	logger.Log.WithField("driver", cfg.Database.Driver).Info("Connecting to database...")

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Database.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func dialectorFor(cfg *configuration.Config) (gorm.Dialector, error) {
	db := cfg.Database
	switch db.Driver {
	case "sqlite":
		return sqlite.Open(db.Path + "?_journal_mode=WAL&_busy_timeout=5000"), nil
	case "postgres":
		return postgres.Open(db.DSN), nil
	case "mysql":
		dsn := db.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s%s", db.User, db.Password, db.Host, db.Port, db.Name, db.Var)
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

// OpenSQLite opens and migrates a standalone sqlite file. Used by tests and
// the local development setup.
func OpenSQLite(path string, silent bool) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: newGormLogger()}
	if silent {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newGormLogger() gormlogger.Interface {
	return gormlogger.New(logger.Log, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// MonitorHealth pings the pool every interval until ctx is cancelled.
func MonitorHealth(ctx context.Context, db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sqlDB, err := db.DB()
		if err != nil {
			logger.Log.WithError(err).Error("Failed to get database instance for health check")
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = sqlDB.PingContext(pingCtx)
		cancel()
		if err != nil {
			logger.Log.WithError(err).Error("Database health check failed")
		} else {
			logger.Log.Debug("Database health check passed")
		}

		stats := sqlDB.Stats()
		logger.Log.Debugf("DB Stats - Open connections: %d, In use: %d, Idle: %d", stats.OpenConnections, stats.InUse, stats.Idle)
	}
}

// Ping reports whether the store answers within the context deadline.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Log.WithError(err).Warn("Error closing database")
	}
}
