package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".assessmaker"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".assessmaker/assessmaker.db"
	DefaultKeyFile    = ".assessmaker/master.key"
	DefaultExportDir  = ".assessmaker/exports"
	DefaultBackupDir  = ".assessmaker/backups"

	DefaultGatewayPort = 6080

	// MinIterations is the lowest PBKDF2 round count accepted from config.
	MinIterations = 10000

	envPrefix = "ASSESSMAKER"
)

// Load reads the config file and returns a populated Config. A missing file
// is not an error: defaults apply. The configPath flag may override the
// default location. A .env file in the working directory is loaded first.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	normalise(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	if configPath == "" {
		p, err := ConfigPath("")
		if err != nil {
			return err
		}
		configPath = p
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Redacted returns a copy of cfg safe to print.
func (c Config) Redacted() Config {
	if c.Backup.S3.SecretKey != "" {
		c.Backup.S3.SecretKey = "***"
	}
	if c.Backup.S3.AccessKey != "" {
		c.Backup.S3.AccessKey = "***"
	}
	if c.Notify.Slack.WebhookURL != "" {
		c.Notify.Slack.WebhookURL = "https://hooks.slack.com/***"
	}
	if c.Notify.Webhook.Secret != "" {
		c.Notify.Webhook.Secret = "***"
	}
	if i := strings.Index(c.Database.DSN, "@"); i > 0 {
		if j := strings.Index(c.Database.DSN[:i], ":"); j >= 0 {
			c.Database.DSN = c.Database.DSN[:j+1] + "***" + c.Database.DSN[i:]
		}
	}
	return c
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("crypto.key_file", filepath.Join(home, DefaultKeyFile))
	v.SetDefault("crypto.iterations", MinIterations)

	v.SetDefault("gateway.port", DefaultGatewayPort)
	v.SetDefault("gateway.max_upload_mb", 10)

	v.SetDefault("report.logo_path", "")
	v.SetDefault("report.export_dir", filepath.Join(home, DefaultExportDir))
	v.SetDefault("report.organization", "")
	v.SetDefault("report.division", "")
	v.SetDefault("report.templates_file", "")

	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.dir", filepath.Join(home, DefaultBackupDir))
	v.SetDefault("backup.encrypt", true)
	v.SetDefault("backup.retain", 14)
	v.SetDefault("backup.s3.bucket", "")
	v.SetDefault("backup.s3.region", "us-east-1")
	v.SetDefault("backup.s3.prefix", "assessmaker/")
	v.SetDefault("backup.s3.endpoint", "")
	v.SetDefault("backup.s3.access_key", "")
	v.SetDefault("backup.s3.secret_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("notify.slack.webhook_url", "")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.secret", "")
}

// normalise resolves ~ in configured paths and clamps numeric settings.
func normalise(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Crypto.KeyFile = expandHome(cfg.Crypto.KeyFile, home)
	cfg.Report.LogoPath = expandHome(cfg.Report.LogoPath, home)
	cfg.Report.ExportDir = expandHome(cfg.Report.ExportDir, home)
	cfg.Report.TemplatesFile = expandHome(cfg.Report.TemplatesFile, home)
	cfg.Backup.Dir = expandHome(cfg.Backup.Dir, home)
	cfg.Log.File = expandHome(cfg.Log.File, home)

	if cfg.Crypto.Iterations < MinIterations {
		cfg.Crypto.Iterations = MinIterations
	}
	if cfg.Gateway.MaxUploadMB <= 0 {
		cfg.Gateway.MaxUploadMB = 10
	}
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
