// Package database opens the Oracle target store with go-ora, over a plain
// TCPS connection or an Autonomous Database wallet.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"parcelsync/internal/logging"

	"github.com/joho/godotenv"
	_ "github.com/sijms/go-ora/v2"
)

//go:embed schema.sql
var schemaSQL string

// DefaultPingTimeout bounds the connection check in Open.
const DefaultPingTimeout = 10 * time.Second

// DBConfig holds database connection configuration
type DBConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	Service        string `mapstructure:"service"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	WalletLocation string `mapstructure:"wallet_location"`
	SSL            bool   `mapstructure:"ssl"`
}

// dsn builds a properly encoded connection string for Oracle Autonomous Database
func dsn(cfg DBConfig) string {
	q := url.Values{}
	if cfg.WalletLocation != "" {
		// Use wallet-based mTLS connection
		q.Set("ssl", "true")
		q.Set("wallet", cfg.WalletLocation)
	} else if cfg.SSL {
		q.Set("ssl", "true") // ADB requires TCPS on 1522
	}

	u := &url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(cfg.Username, cfg.Password), // escapes automatically
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Service, // keep full service name
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redacted returns the connection string with the password masked.
func (c DBConfig) Redacted() string {
	u, err := url.Parse(dsn(c))
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// Open connects and pings the database, giving up after timeout.
func Open(ctx context.Context, cfg DBConfig, timeout time.Duration) (*sql.DB, error) {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	logging.FromContext(ctx).Info().Str("dsn", cfg.Redacted()).Msg("connecting to oracle")

	db, err := sql.Open("oracle", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates SYNC_LOCKS and SYNC_METADATA. Tables that already
// exist (ORA-00955) are left alone.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Statements(schemaSQL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !strings.Contains(err.Error(), "ORA-00955") {
			return fmt.Errorf("create oracle schema: %w", err)
		}
	}
	return nil
}

// Statements splits a DDL script on semicolons. go-ora executes one
// statement per call and rejects the trailing semicolon.
func Statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadDatabaseConfig loads database configuration from environment
// variables, reading envFile first when it exists. Variables already set in
// the environment win over the file.
func LoadDatabaseConfig(envFile string) DBConfig {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			logging.Default().Warn().Err(err).Str("path", envFile).Msg("read env file")
		}
	}

	return DBConfig{
		Host:           getEnvOrDefault("DB_HOST", "localhost"),
		Port:           getEnvOrDefault("DB_PORT", "1521"),
		Service:        getEnvOrDefault("DB_SERVICE", "XE"),
		Username:       getEnvOrDefault("DB_USERNAME", ""),
		Password:       getEnvOrDefault("DB_PASSWORD", ""),
		WalletLocation: getEnvOrDefault("DB_WALLET_LOCATION", ""),
		SSL:            getEnvOrDefault("DB_SSL", "") == "true",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
