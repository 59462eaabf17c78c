package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Search    SearchConfig    `mapstructure:"search"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  int    `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout int    `mapstructure:"write_timeout" validate:"gt=0"`
	QueryTimeout int    `mapstructure:"query_timeout" validate:"gt=0"` // seconds
	CORSOrigins  string `mapstructure:"cors_origins"`
}

// DataConfig locates the file-backed catalog and source files.
type DataConfig struct {
	Dir     string `mapstructure:"dir" validate:"required"`
	Catalog string `mapstructure:"catalog" validate:"required"`
	Index   bool   `mapstructure:"index"` // wrap the record store in the R-tree index
}

type SearchConfig struct {
	ScoreCutoff int `mapstructure:"score_cutoff" validate:"min=0,max=100"`
	SourceLimit int `mapstructure:"source_limit" validate:"min=1"`
	Workers     int `mapstructure:"workers" validate:"min=1"`
}

type CatalogConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=file postgres"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"required_if=Enabled true"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
	TTL     int    `mapstructure:"ttl" validate:"min=0"` // seconds
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr" validate:"required_if=Enabled true"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from .env, an optional config file and
// environment variables, in increasing order of precedence.
func Load(service string) (*Config, error) {
	_ = godotenv.Load() // OK if missing

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.query_timeout", 5)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.catalog", "bounding.txt")
	v.SetDefault("data.index", true)
	v.SetDefault("search.score_cutoff", 45)
	v.SetDefault("search.source_limit", 15)
	v.SetDefault("search.workers", 8)
	v.SetDefault("catalog.driver", "file")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "venuefinder")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "venuefinder")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.ttl", 300)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: VENUEFINDER_DATA_DIR → data.dir
	v.SetEnvPrefix("VENUEFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
// Database settings are only checked when the postgres catalog is selected.
func (c *Config) Validate() error {
	validate := validator.New()
	var errs []string

	check := func(section string, v interface{}) {
		err := validate.Struct(v)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return
		}
		for _, fe := range verrs {
			errs = append(errs, describe(section, fe))
		}
	}

	check("server", c.Server)
	check("data", c.Data)
	check("search", c.Search)
	check("catalog", c.Catalog)
	if c.Catalog.Driver == "postgres" {
		check("database", c.Database)
	}
	check("nats", c.NATS)
	check("valkey", c.Valkey)
	check("telemetry", c.Telemetry)
	check("log", c.Log)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func describe(section string, fe validator.FieldError) string {
	key := section + "." + toSnake(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return key + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", key, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", key, fe.Param(), fe.Value())
	case "gt":
		return key + " must be positive"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}

// toSnake maps a Go field name back to its config key (ReadTimeout → read_timeout).
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
