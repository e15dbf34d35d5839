package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pserrors "parcelsync/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
layer: tax_parcels_stage
tax_codes: ["70", "68"]
source:
  type: shapefile
  path: data/parcels.shp
  tax_code_field: TAXCODE
export:
  uri: file:///srv/exports/parcels.txt
target:
  table: PARCELS_STAGE
  sqlite_path: /var/lib/parcelsync/target.db
crs:
  target: EPSG:3857
bsa:
  municipalities:
    - {prefix: "J ", uid: "268"}
    - {prefix: "70", uid: "385"}
hooks:
  before: ["stop-service parcels"]
  after: ["start-service parcels"]
schedule:
  cron: "0 6 * * *"
timeout: 45m
`

// isolate keeps the developer's environment and home directory out of Load.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_SERVICE", "DB_USERNAME", "DB_PASSWORD", "DB_WALLET_LOCATION", "DB_SSL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "parcelsync.yaml", sampleYAML)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "tax_parcels_stage", cfg.Layer)
	assert.Equal(t, []string{"70", "68"}, cfg.TaxCodes)
	assert.Equal(t, SourceShapefile, cfg.Source.Type)
	assert.Equal(t, "data/parcels.shp", cfg.Source.Path)
	assert.Equal(t, "file:///srv/exports/parcels.txt", cfg.Export.URI)
	assert.Equal(t, '|', cfg.Delimiter())
	assert.Equal(t, DriverSQLite, cfg.Target.Driver)
	assert.Equal(t, "PARCELS_STAGE", cfg.Target.Table)
	assert.Equal(t, "EPSG:3857", cfg.CRS.Target)
	assert.Equal(t, []Municipality{{Prefix: "J ", UID: "268"}, {Prefix: "70", UID: "385"}}, cfg.BSA.Municipalities)
	assert.Equal(t, []string{"stop-service parcels"}, cfg.Hooks.Before)
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	assert.Equal(t, 45*time.Minute, cfg.Timeout)

	// defaults
	assert.True(t, cfg.Publish.Metadata)
	assert.Equal(t, "parcelsync.runs", cfg.Publish.NATSSubject)
	assert.Equal(t, ":9464", cfg.Schedule.MetricsAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "-", cfg.PIN.Separator)

	s, err := cfg.LoadSchema()
	require.NoError(t, err)
	assert.Equal(t, "TAXCODE", s.Spatial().TaxCode)
	assert.Equal(t, "PIN", s.Spatial().Key)

	link, err := cfg.URLBuilder().Build("J -01-02-003")
	require.NoError(t, err)
	assert.Contains(t, link, "uid=268")
	_, err = cfg.URLBuilder().Build("68-01-02-003")
	assert.True(t, pserrors.IsLookup(err), "configured table replaces the built-in one")
}

func TestLoadEnvironment(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "parcelsync.yaml", sampleYAML)

	t.Setenv("PARCELSYNC_TAX_CODES", "70, 68,O ")
	t.Setenv("PARCELSYNC_TARGET_TABLE", "PARCELS_PROD")
	t.Setenv("PARCELSYNC_PIN_SENTINEL_USES_PNUM", "true")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"70", "68", "O"}, cfg.TaxCodes)
	assert.Equal(t, "PARCELS_PROD", cfg.Target.Table)
	assert.True(t, cfg.PINRule().SentinelUsesPnum)
}

func TestLoadWithoutFile(t *testing.T) {
	isolate(t)
	t.Setenv("PARCELSYNC_SOURCE_PATH", "parcels.shp")
	t.Setenv("PARCELSYNC_EXPORT_URI", "export.txt")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, "TAX_PARCELS", cfg.Layer)
	assert.Empty(t, cfg.TaxCodes)
	assert.Equal(t, 30*time.Minute, cfg.Timeout)
}

func TestLoadOracleFromEnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := writeFile(t, dir, ".env", "DB_HOST=adb.example.com\nDB_PORT=1522\nDB_USERNAME=parcels\nDB_PASSWORD=s3cret\nDB_SSL=true\n")
	path := writeFile(t, dir, "parcelsync.yaml", sampleYAML)

	t.Setenv("PARCELSYNC_TARGET_DRIVER", DriverOracle)
	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	o := cfg.Target.Oracle
	assert.Equal(t, "adb.example.com", o.Host)
	assert.Equal(t, "1522", o.Port)
	assert.Equal(t, "XE", o.Service)
	assert.Equal(t, "parcels", o.Username)
	assert.True(t, o.SSL)
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "layer: [unclosed")
	_, err = Load(bad, "")
	assert.Error(t, err)

	path := writeFile(t, dir, "parcelsync.yaml", sampleYAML)
	t.Setenv("PARCELSYNC_EXPORT_DELIMITER", "||")
	_, err = Load(path, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pserrors.ErrInvalidConfig)
}

func valid() Config {
	return Config{
		Layer:  "TAX_PARCELS",
		Source: SourceConfig{Type: SourceShapefile, Path: "parcels.shp"},
		Export: ExportConfig{URI: "export.txt", Delimiter: "|"},
		Target: TargetConfig{Driver: DriverSQLite, Table: "TAX_PARCELS", SQLitePath: "t.db"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "blank layer", mutate: func(c *Config) { c.Layer = " " }, field: "layer"},
		{name: "unknown source", mutate: func(c *Config) { c.Source.Type = "arcgis" }, field: "source.type"},
		{name: "shapefile without path", mutate: func(c *Config) { c.Source.Path = "" }, field: "source.path"},
		{name: "database without table", mutate: func(c *Config) { c.Source.Type = SourceDatabase; c.Source.Driver = DriverSQLite }, field: "source.table"},
		{name: "database bad driver", mutate: func(c *Config) {
			c.Source = SourceConfig{Type: SourceDatabase, Table: "PARCELS", Driver: "postgres"}
		}, field: "source.driver"},
		{name: "bad field name", mutate: func(c *Config) { c.Source.TaxCodeField = "TAX CODE" }, field: "source.tax_code_field"},
		{name: "unknown source crs", mutate: func(c *Config) { c.Source.CRS = "EPSG:27700" }, field: "source.crs"},
		{name: "no export", mutate: func(c *Config) { c.Export.URI = "" }, field: "export.uri"},
		{name: "empty delimiter", mutate: func(c *Config) { c.Export.Delimiter = "" }, field: "export.delimiter"},
		{name: "bad target table", mutate: func(c *Config) { c.Target.Table = "TAX-PARCELS" }, field: "target.table"},
		{name: "unknown driver", mutate: func(c *Config) { c.Target.Driver = "mysql" }, field: "target.driver"},
		{name: "oracle without user", mutate: func(c *Config) { c.Target.Driver = DriverOracle }, field: "target.oracle.username"},
		{name: "unknown target crs", mutate: func(c *Config) { c.CRS.Target = "EPSG:1" }, field: "crs.target"},
		{name: "incomplete municipality", mutate: func(c *Config) { c.BSA.Municipalities = []Municipality{{Prefix: "70"}} }, field: "bsa.municipalities[0]"},
		{name: "nats without subject", mutate: func(c *Config) { c.Publish.NATSURL = "nats://localhost:4222" }, field: "publish.nats_subject"},
		{name: "bad cron", mutate: func(c *Config) { c.Schedule.Cron = "every day" }, field: "schedule.cron"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -time.Second }, field: "timeout"},
	}

	c := valid()
	require.NoError(t, c.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			var ce *pserrors.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
