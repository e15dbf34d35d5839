// Package config loads the parcelsync configuration from a YAML file,
// PARCELSYNC_ environment variables and a .env file, and validates it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"parcelsync/internal/database"
	"parcelsync/internal/derive"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/reproject"
	"parcelsync/internal/schema"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	configName = "parcelsync"
	envPrefix  = "PARCELSYNC"

	// DefaultEnvFile holds the DB_* Oracle credentials.
	DefaultEnvFile = ".env"
)

// Source types and target drivers.
const (
	SourceShapefile = "shapefile"
	SourceDatabase  = "database"

	DriverSQLite = "sqlite"
	DriverOracle = "oracle"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config is the decoded configuration. Treat it as read-only after Load.
type Config struct {
	Layer      string         `mapstructure:"layer"`
	TaxCodes   []string       `mapstructure:"tax_codes"`
	Source     SourceConfig   `mapstructure:"source"`
	Export     ExportConfig   `mapstructure:"export"`
	SchemaFile string         `mapstructure:"schema_file"`
	Target     TargetConfig   `mapstructure:"target"`
	CRS        CRSConfig      `mapstructure:"crs"`
	PIN        PINConfig      `mapstructure:"pin"`
	BSA        BSAConfig      `mapstructure:"bsa"`
	Publish    PublishConfig  `mapstructure:"publish"`
	Hooks      HooksConfig    `mapstructure:"hooks"`
	Log        logging.Config `mapstructure:"log"`
	Schedule   ScheduleConfig `mapstructure:"schedule"`
	Timeout    time.Duration  `mapstructure:"timeout"`

	// File is the config file read, empty when none was found.
	File string `mapstructure:"-"`
}

// SourceConfig selects the spatial parcel source.
type SourceConfig struct {
	Type string `mapstructure:"type"`

	// Path is the shapefile, or the SQLite file of a database source.
	Path string `mapstructure:"path"`

	// Driver of a database source. oracle reuses target.oracle.
	Driver         string `mapstructure:"driver"`
	Table          string `mapstructure:"table"`
	GeometryColumn string `mapstructure:"geometry_column"`

	// CRS overrides the source's declared coordinate system.
	CRS           string `mapstructure:"crs"`
	KeyField      string `mapstructure:"key_field"`
	RevisionField string `mapstructure:"revision_field"`
	TaxCodeField  string `mapstructure:"tax_code_field"`
}

// ExportConfig locates the tabular export.
type ExportConfig struct {
	URI       string `mapstructure:"uri"`
	Delimiter string `mapstructure:"delimiter"`
	Workers   int    `mapstructure:"workers"`
}

// TargetConfig selects the target store.
type TargetConfig struct {
	Driver      string            `mapstructure:"driver"`
	Table       string            `mapstructure:"table"`
	SQLitePath  string            `mapstructure:"sqlite_path"`
	Oracle      database.DBConfig `mapstructure:"oracle"`
	PingTimeout time.Duration     `mapstructure:"ping_timeout"`
}

// CRSConfig holds the target coordinate system.
type CRSConfig struct {
	Target string `mapstructure:"target"`
}

// PINConfig tunes PIN derivation.
type PINConfig struct {
	Sentinel         string `mapstructure:"sentinel"`
	SentinelUsesPnum bool   `mapstructure:"sentinel_uses_pnum"`
	Separator        string `mapstructure:"separator"`
}

// Municipality maps a pnum prefix to an assessing uid. Prefixes are matched
// verbatim, trailing spaces included.
type Municipality struct {
	Prefix string `mapstructure:"prefix"`
	UID    string `mapstructure:"uid"`
}

// BSAConfig holds the assessing deep link settings.
type BSAConfig struct {
	URLTemplate    string         `mapstructure:"url_template"`
	Municipalities []Municipality `mapstructure:"municipalities"`
}

// PublishConfig selects where run summaries go. The log publisher is always on.
type PublishConfig struct {
	Metadata    bool          `mapstructure:"metadata"`
	NATSURL     string        `mapstructure:"nats_url"`
	NATSSubject string        `mapstructure:"nats_subject"`
	NATSTimeout time.Duration `mapstructure:"nats_timeout"`
}

// HooksConfig lists commands run around each apply.
type HooksConfig struct {
	Before []string `mapstructure:"before"`
	After  []string `mapstructure:"after"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron        string `mapstructure:"cron"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads path, or parcelsync.yaml from the working directory or
// $HOME/.parcelsync when path is empty. A missing default file is not an
// error. envFile is loaded first without overriding the environment.
func Load(path, envFile string) (*Config, error) {
	oracle := database.LoadDatabaseConfig(envFile)

	v := viper.New()
	setDefaults(v, oracle)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".parcelsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !pserrors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.TaxCodes = splitList(cfg.TaxCodes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, oracle database.DBConfig) {
	log := logging.DefaultConfig()

	defaults := map[string]any{
		"layer":                         "TAX_PARCELS",
		"tax_codes":                     []string{},
		"source.type":                   SourceShapefile,
		"source.path":                   "",
		"source.driver":                 DriverSQLite,
		"source.table":                  "",
		"source.geometry_column":        "SHAPE",
		"source.crs":                    "",
		"source.key_field":              "",
		"source.revision_field":         "",
		"source.tax_code_field":         "",
		"export.uri":                    "",
		"export.delimiter":              "|",
		"export.workers":                0,
		"schema_file":                   "",
		"target.driver":                 DriverSQLite,
		"target.table":                  "TAX_PARCELS",
		"target.sqlite_path":            "parcelsync.db",
		"target.ping_timeout":           database.DefaultPingTimeout,
		"target.oracle.host":            oracle.Host,
		"target.oracle.port":            oracle.Port,
		"target.oracle.service":         oracle.Service,
		"target.oracle.username":        oracle.Username,
		"target.oracle.password":        oracle.Password,
		"target.oracle.wallet_location": oracle.WalletLocation,
		"target.oracle.ssl":             oracle.SSL,
		"crs.target":                    "",
		"pin.sentinel":                  derive.DefaultSentinel,
		"pin.sentinel_uses_pnum":        false,
		"pin.separator":                 "-",
		"bsa.url_template":              derive.DefaultURLTemplate,
		"publish.metadata":              true,
		"publish.nats_url":              "",
		"publish.nats_subject":          "parcelsync.runs",
		"publish.nats_timeout":          5 * time.Second,
		"hooks.before":                  []string{},
		"hooks.after":                   []string{},
		"log.level":                     log.Level,
		"log.format":                    log.Format,
		"log.output":                    log.Output,
		"log.max_size_mb":               log.MaxSizeMB,
		"log.max_backups":               log.MaxBackups,
		"log.no_color":                  log.NoColor,
		"schedule.cron":                 "",
		"schedule.metrics_addr":         ":9464",
		"timeout":                       30 * time.Minute,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks the configuration and returns the first problem as a
// ConfigError naming the offending key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Layer) == "" {
		return pserrors.NewConfigError("layer", "must be set")
	}

	switch c.Source.Type {
	case SourceShapefile:
		if c.Source.Path == "" {
			return pserrors.NewConfigError("source.path", "required for a shapefile source")
		}
	case SourceDatabase:
		if !identifier.MatchString(c.Source.Table) {
			return pserrors.NewConfigError("source.table", fmt.Sprintf("invalid table name %q", c.Source.Table))
		}
		switch c.Source.Driver {
		case DriverSQLite:
			if c.Source.Path == "" {
				return pserrors.NewConfigError("source.path", "required for a sqlite database source")
			}
		case DriverOracle:
		default:
			return pserrors.NewConfigError("source.driver", "must be sqlite or oracle")
		}
	default:
		return pserrors.NewConfigError("source.type", "must be shapefile or database")
	}
	for _, f := range []struct{ key, name string }{
		{"source.key_field", c.Source.KeyField},
		{"source.revision_field", c.Source.RevisionField},
		{"source.tax_code_field", c.Source.TaxCodeField},
	} {
		if f.name != "" && !identifier.MatchString(f.name) {
			return pserrors.NewConfigError(f.key, fmt.Sprintf("invalid field name %q", f.name))
		}
	}
	if c.Source.CRS != "" {
		if _, ok := reproject.Lookup(c.Source.CRS); !ok {
			return pserrors.NewConfigError("source.crs", fmt.Sprintf("unsupported CRS %q", c.Source.CRS))
		}
	}

	if c.Export.URI == "" {
		return pserrors.NewConfigError("export.uri", "must be set")
	}
	if utf8.RuneCountInString(c.Export.Delimiter) != 1 {
		return pserrors.NewConfigError("export.delimiter", "must be a single character")
	}
	if c.Export.Workers < 0 {
		return pserrors.NewConfigError("export.workers", "must not be negative")
	}

	if !identifier.MatchString(c.Target.Table) {
		return pserrors.NewConfigError("target.table", fmt.Sprintf("invalid table name %q", c.Target.Table))
	}
	switch c.Target.Driver {
	case DriverSQLite:
		if c.Target.SQLitePath == "" {
			return pserrors.NewConfigError("target.sqlite_path", "required for the sqlite driver")
		}
	case DriverOracle:
		if c.Target.Oracle.Username == "" {
			return pserrors.NewConfigError("target.oracle.username", "required for the oracle driver (or DB_USERNAME)")
		}
	default:
		return pserrors.NewConfigError("target.driver", "must be sqlite or oracle")
	}

	if c.CRS.Target != "" {
		if _, ok := reproject.Lookup(c.CRS.Target); !ok {
			return pserrors.NewConfigError("crs.target", fmt.Sprintf("unsupported CRS %q", c.CRS.Target))
		}
	}

	for i, m := range c.BSA.Municipalities {
		if m.Prefix == "" || m.UID == "" {
			return pserrors.NewConfigError(fmt.Sprintf("bsa.municipalities[%d]", i), "prefix and uid must be set")
		}
	}

	if c.Publish.NATSURL != "" && c.Publish.NATSSubject == "" {
		return pserrors.NewConfigError("publish.nats_subject", "required when nats_url is set")
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return pserrors.NewConfigError("schedule.cron", err.Error())
		}
	}
	if c.Timeout < 0 {
		return pserrors.NewConfigError("timeout", "must not be negative")
	}
	return nil
}

// Delimiter returns the export delimiter rune.
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.Export.Delimiter)
	return r
}

// PINRule returns the configured PIN derivation rule.
func (c *Config) PINRule() derive.PINRule {
	return derive.PINRule{
		Sentinel:         c.PIN.Sentinel,
		SentinelUsesPnum: c.PIN.SentinelUsesPnum,
		Separator:        c.PIN.Separator,
	}
}

// URLBuilder returns the deep link builder. No configured municipalities
// means the built-in table.
func (c *Config) URLBuilder() derive.URLBuilder {
	m := derive.DefaultMunicipalities()
	if len(c.BSA.Municipalities) > 0 {
		m = make(map[string]string, len(c.BSA.Municipalities))
		for _, e := range c.BSA.Municipalities {
			m[e.Prefix] = e.UID
		}
	}
	return derive.NewURLBuilder(c.BSA.URLTemplate, m)
}

// LoadSchema returns the schema file's schema, or the built-in one, with
// the source field overrides applied.
func (c *Config) LoadSchema() (*schema.Schema, error) {
	s := schema.Default()
	if c.SchemaFile != "" {
		var err error
		if s, err = schema.Load(c.SchemaFile); err != nil {
			return nil, err
		}
	}
	return s.WithSpatial(schema.Spatial{
		Key:      c.Source.KeyField,
		Revision: c.Source.RevisionField,
		TaxCode:  c.Source.TaxCodeField,
	}), nil
}

// splitList trims entries and expands comma lists, which is how
// PARCELSYNC_TAX_CODES arrives from the environment.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
