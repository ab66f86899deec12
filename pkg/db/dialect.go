package db

import (
	"fmt"
	"strings"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/smallbiznis/allotment/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for cfg.DBType. "sqlite" uses the cgo
// driver; "sqlite-pure" runs without cgo and is what tests use.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.DBName)), nil
	case "sqlite-pure":
		return puresqlite.Open(sqliteDSN(cfg.DBName)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func sqliteDSN(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "allotment.db"
	}
	if name == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if strings.HasSuffix(name, ".db") || strings.HasPrefix(name, "file:") {
		return name
	}
	return name + ".db"
}
