package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Database  db.Config
	Server    ServerConfig
	Import    ImportConfig
	Log       LogConfig
	Templates TemplatesConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	Workers           int
	ChunkSize         int
	ErrorSummaryLimit int
	StuckAfter        time.Duration
	ReapInterval      time.Duration
	MaxUploadBytes    int64
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// TemplatesConfig points at the template seed file.
type TemplatesConfig struct {
	SeedFile string
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Import: ImportConfig{
			Workers:           8,
			ChunkSize:         500,
			ErrorSummaryLimit: 10,
			StuckAfter:        30 * time.Minute,
			ReapInterval:      5 * time.Minute,
			MaxUploadBytes:    32 << 20,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads config.yaml from configPath (if present) and applies LEDGERFLOW_* env overrides.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("LEDGERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.Database = db.Config{
		Host:               v.GetString("database.host"),
		Port:               v.GetInt("database.port"),
		User:               v.GetString("database.user"),
		Password:           v.GetString("database.password"),
		DBName:             v.GetString("database.dbname"),
		SSLMode:            v.GetString("database.sslmode"),
		TenantDBNameFormat: v.GetString("database.tenant_dbname_format"),
		MaxConns:           int32(v.GetInt("database.max_conns")),
	}
	cfg.Server = ServerConfig{
		Addr:           v.GetString("server.addr"),
		AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		ReadTimeout:    v.GetDuration("server.read_timeout"),
		WriteTimeout:   v.GetDuration("server.write_timeout"),
		IdleTimeout:    v.GetDuration("server.idle_timeout"),
	}
	cfg.Import = ImportConfig{
		Workers:           v.GetInt("import.workers"),
		ChunkSize:         v.GetInt("import.chunk_size"),
		ErrorSummaryLimit: v.GetInt("import.error_summary_limit"),
		StuckAfter:        v.GetDuration("import.stuck_after"),
		ReapInterval:      v.GetDuration("import.reap_interval"),
		MaxUploadBytes:    v.GetInt64("import.max_upload_bytes"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Templates = TemplatesConfig{SeedFile: v.GetString("templates.seed_file")}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Import.Workers <= 0 {
		return fmt.Errorf("import.workers must be positive")
	}
	if c.Import.ChunkSize <= 0 {
		return fmt.Errorf("import.chunk_size must be positive")
	}
	if c.Import.StuckAfter <= 0 {
		return fmt.Errorf("import.stuck_after must be positive")
	}
	if c.Database.TenantDBNameFormat != "" && !strings.Contains(c.Database.TenantDBNameFormat, "%s") {
		return fmt.Errorf("database.tenant_dbname_format must contain %%s")
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.tenant_dbname_format", cfg.Database.TenantDBNameFormat)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)

	v.SetDefault("import.workers", cfg.Import.Workers)
	v.SetDefault("import.chunk_size", cfg.Import.ChunkSize)
	v.SetDefault("import.error_summary_limit", cfg.Import.ErrorSummaryLimit)
	v.SetDefault("import.stuck_after", cfg.Import.StuckAfter)
	v.SetDefault("import.reap_interval", cfg.Import.ReapInterval)
	v.SetDefault("import.max_upload_bytes", cfg.Import.MaxUploadBytes)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("templates.seed_file", cfg.Templates.SeedFile)
}
