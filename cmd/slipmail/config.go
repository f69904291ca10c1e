package main

import "time"

const (
	defaultBindHost            = "127.0.0.1"
	defaultAPIPort             = 3000
	defaultQueryTimeout        = 30 * time.Second
	defaultMaxUploadBytes      = 64 << 20
	defaultSMTPPort            = 587
	defaultSMTPTLS             = "mandatory"
	defaultSMTPTimeout         = 30 * time.Second
	defaultDispatchConcurrency = 1
	defaultHistoryRetention    = 365 // days, 0 = disabled
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 24
	defaultLogLevel            = "info"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	APIPort        int           `mapstructure:"api-port"`
	APIAddr        string        `mapstructure:"api-addr"`
	PublicBaseURL  string        `mapstructure:"public-base-url"`
	DataDir        string        `mapstructure:"data-dir"`
	DBPath         string        `mapstructure:"db-path"`
	QueryTimeout   time.Duration `mapstructure:"query-timeout"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes"`

	SMTPHost     string        `mapstructure:"smtp-host"`
	SMTPPort     int           `mapstructure:"smtp-port"`
	SMTPUsername string        `mapstructure:"smtp-username"`
	SMTPPassword string        `mapstructure:"smtp-password"`
	SMTPTLS      string        `mapstructure:"smtp-tls"`
	SMTPTimeout  time.Duration `mapstructure:"smtp-timeout"`
	MailFrom     string        `mapstructure:"mail-from"`
	MailFromName string        `mapstructure:"mail-from-name"`

	DefaultSubject      string `mapstructure:"default-subject"`
	DefaultBody         string `mapstructure:"default-body"`
	DispatchConcurrency int    `mapstructure:"dispatch-concurrency"`
	StrictBindings      bool   `mapstructure:"strict-bindings"`
	HistoryRetention    int    `mapstructure:"history-retention"`

	BackupEnabled  bool          `mapstructure:"backup-enabled"`
	BackupInterval time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir string        `mapstructure:"backup-local-dir"`
	BackupKeepLast int           `mapstructure:"backup-keep-last"`

	LogLevel   string `mapstructure:"log-level"`
	LogFile    string `mapstructure:"log-file"`
	LogConsole bool   `mapstructure:"log-console"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
