package config

// Config is the root configuration structure for assessmaker.
// Serialised to ~/.assessmaker/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Crypto   CryptoConfig   `mapstructure:"crypto"   json:"crypto"`
	Gateway  GatewayConfig  `mapstructure:"gateway"  json:"gateway"`
	Report   ReportConfig   `mapstructure:"report"   json:"report"`
	Backup   BackupConfig   `mapstructure:"backup"   json:"backup"`
	Log      LogConfig      `mapstructure:"log"      json:"log"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// CryptoConfig controls field encryption at rest.
type CryptoConfig struct {
	// KeyFile holds the hex-encoded master key. Losing it makes every
	// encrypted value unrecoverable; back it up separately from the database.
	KeyFile string `mapstructure:"key_file"   json:"key_file"`
	// Iterations is the PBKDF2 round count (minimum 10000).
	Iterations int `mapstructure:"iterations" json:"iterations"`
}

// GatewayConfig controls the REST API server.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6080).
	Port int `mapstructure:"port"          json:"port"`
	// MaxUploadMB caps a single PoC image upload.
	MaxUploadMB int `mapstructure:"max_upload_mb" json:"max_upload_mb"`
}

// ReportConfig holds rendering and export settings.
type ReportConfig struct {
	// LogoPath is an image placed on the cover and in the running header.
	LogoPath      string `mapstructure:"logo_path"      json:"logo_path"`
	ExportDir     string `mapstructure:"export_dir"     json:"export_dir"`
	Organization  string `mapstructure:"organization"   json:"organization"`
	Division      string `mapstructure:"division"       json:"division"`
	TemplatesFile string `mapstructure:"templates_file" json:"templates_file"`
}

// BackupConfig controls scheduled backups.
type BackupConfig struct {
	// Schedule is a cron expression; empty disables scheduled backups.
	Schedule string `mapstructure:"schedule" json:"schedule"`
	Dir      string `mapstructure:"dir"      json:"dir"`
	// Encrypt seals archives with the master key before they are written.
	Encrypt bool `mapstructure:"encrypt"  json:"encrypt"`
	// Retain is the number of archives kept in Dir (0 keeps all).
	Retain int      `mapstructure:"retain"   json:"retain"`
	S3     S3Config `mapstructure:"s3"       json:"s3"`
}

// S3Config enables an offsite copy of each backup when Bucket is set.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"     json:"bucket"`
	Region   string `mapstructure:"region"     json:"region"`
	Prefix   string `mapstructure:"prefix"     json:"prefix"`
	Endpoint string `mapstructure:"endpoint"   json:"endpoint"`
	// AccessKey/SecretKey are optional; the default AWS credential chain is used otherwise.
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Level      string `mapstructure:"level"        json:"level"`
	File       string `mapstructure:"file"         json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"  json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days"`
}

// NotifyConfig controls operational notifications (backups, key rotation).
type NotifyConfig struct {
	// Events filters the event types sent; empty sends backup_failed and key_rotated.
	Events  []string            `mapstructure:"events"  json:"events"`
	Slack   SlackNotifyConfig   `mapstructure:"slack"   json:"slack"`
	Webhook WebhookNotifyConfig `mapstructure:"webhook" json:"webhook"`
}

// SlackNotifyConfig holds the Slack incoming webhook URL.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// WebhookNotifyConfig posts events as JSON to URL, signed with Secret when set.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}
