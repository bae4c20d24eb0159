package db

import (
	"fmt"

	"Gin_postgres_redis_lending_engine/config"
	"Gin_postgres_redis_lending_engine/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ConnectDB(cfg config.PostgresConfig, log *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("Database connected", zap.String("db_name", cfg.DBName))
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Item{},
		&models.Lending{},
		&models.ApprovalRequest{},
		&models.BlacklistEntry{},
		&models.TenantPolicy{},
	); err != nil {
		return err
	}

	// one live suspension per borrower and tenant
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_user
	  ON %s (user_id, org_id, instance_id)
	  WHERE is_active;
	`, models.BlacklistTable, models.BlacklistTable)).Error; err != nil {
		return err
	}

	// maxItemsPerUser counts open lendings on every checkout
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_by_borrower
	  ON %s (org_id, instance_id, borrower_id)
	  WHERE state = 'active';
	`, models.LendingTable, models.LendingTable)).Error; err != nil {
		return err
	}

	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_pending_by_item
	  ON %s (item_id, created_at)
	  WHERE status = 'PENDING';
	`, models.ApprovalTable, models.ApprovalTable)).Error; err != nil {
		return err
	}

	return nil
}
