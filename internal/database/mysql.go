package database

import (
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// buildMySQLDSN sets clientFoundRows so an UPDATE that writes an unchanged
// value still reports the matched row; the gateway relies on that to tell a
// missing row from a no-op write. An explicit DSN is parsed and gets the same
// flag forced on.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		c, err := gomysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		c.ClientFoundRows = true
		return c.FormatDSN(), nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	user := cfg.User
	if cfg.Password != "" {
		user = cfg.User + ":" + cfg.Password
	}

	options := map[string]string{
		"charset":   "utf8mb4",
		"parseTime": "True",
		"loc":       "Local",
	}
	for k, v := range cfg.Options {
		options[k] = v
	}
	options["clientFoundRows"] = "true"
	opts := make([]string, 0, len(options))
	for _, k := range sortedKeys(options) {
		opts = append(opts, k+"="+options[k])
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", user, host, port, cfg.Name, strings.Join(opts, "&")), nil
}
