package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10, QueryTimeout: 5},
		Data:    DataConfig{Dir: "data", Catalog: "bounding.txt"},
		Search:  SearchConfig{ScoreCutoff: 45, SourceLimit: 15, Workers: 4},
		Catalog: CatalogConfig{Driver: "file"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port must be at most 65535"},
		{"zero query timeout", func(c *Config) { c.Server.QueryTimeout = 0 }, "server.query_timeout must be positive"},
		{"cutoff above 100", func(c *Config) { c.Search.ScoreCutoff = 101 }, "search.score_cutoff must be at most 100"},
		{"no data dir", func(c *Config) { c.Data.Dir = "" }, "data.dir is required"},
		{"unknown driver", func(c *Config) { c.Catalog.Driver = "sqlite" }, "catalog.driver must be one of"},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true }, "nats.url is required"},
		{"valkey without addr", func(c *Config) { c.Valkey.Enabled = true }, "valkey.addr is required"},
		{"postgres without host", func(c *Config) { c.Catalog.Driver = "postgres"; c.Database.Port = 5432; c.Database.User = "u"; c.Database.DBName = "d" }, "database.host is required"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DatabaseIgnoredForFileCatalog(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VENUEFINDER_DATA_DIR", "/srv/entrances")
	t.Setenv("VENUEFINDER_SEARCH_SCORE_CUTOFF", "60")

	cfg, err := Load("venuefinder-test")
	require.NoError(t, err)
	assert.Equal(t, "/srv/entrances", cfg.Data.Dir)
	assert.Equal(t, 60, cfg.Search.ScoreCutoff)
	assert.Equal(t, 15, cfg.Search.SourceLimit)
	assert.Equal(t, "bounding.txt", cfg.Data.Catalog)
	assert.Equal(t, "venuefinder-test", cfg.Telemetry.ServiceName)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "venues", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/venues?sslmode=disable", d.DSN())
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "read_timeout", toSnake("ReadTimeout"))
	assert.Equal(t, "dbname", toSnake("DBName"))
	assert.Equal(t, "url", toSnake("URL"))
}
