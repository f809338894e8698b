package db

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/zulandar/modelyard/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN for cfg. An empty database name connects to the
// server without selecting a schema.
func DSN(cfg config.DatabaseConfig, database string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = database
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// Open connects to the dev backend's database.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch cfg.Driver {
	case "mysql":
		db, err := gorm.Open(gormmysql.Open(DSN(cfg, cfg.Name)), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
		}
		return db, nil
	case "sqlite", "":
		return OpenSQLite(cfg.Path)
	}
	return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
}

// OpenSQLite opens a SQLite database at path. ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; an in-memory database exists per connection.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// ConnectAdmin opens a connection to the MySQL server without selecting a
// database, used for CREATE DATABASE.
func ConnectAdmin(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(DSN(cfg, "")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}

// Prepare opens the configured database, creating the MySQL schema first
// when needed, and migrates it.
func Prepare(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver == "mysql" {
		admin, err := ConnectAdmin(cfg)
		if err != nil {
			return nil, err
		}
		err = CreateDatabase(admin, cfg.Name)
		if sqlDB, derr := admin.DB(); derr == nil {
			sqlDB.Close()
		}
		if err != nil {
			return nil, err
		}
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
