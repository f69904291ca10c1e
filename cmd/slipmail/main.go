package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/slipmail/slipmail/internal/logging"
	"github.com/slipmail/slipmail/internal/mailer"
	"github.com/slipmail/slipmail/internal/model"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	var testMail bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/slipmail/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&testMail, "test-mail", false, "verify SMTP settings by sending a test message to mail-from, then exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("Slipmail - Payslip Distribution Service\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if testMail {
		if err := runTestMail(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "SMTP test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("SMTP test message sent to %s\n", cfg.MailFrom)
		return
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	shareDir := filepath.Join(home, ".local", "share", "slipmail")

	v := viper.New()
	v.SetEnvPrefix("SLIPMAIL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("public-base-url", "")
	v.SetDefault("data-dir", filepath.Join(shareDir, "blobs"))
	v.SetDefault("db-path", filepath.Join(shareDir, "slipmail.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-upload-bytes", defaultMaxUploadBytes)
	v.SetDefault("smtp-host", "")
	v.SetDefault("smtp-port", defaultSMTPPort)
	v.SetDefault("smtp-username", "")
	v.SetDefault("smtp-password", "")
	v.SetDefault("smtp-tls", defaultSMTPTLS)
	v.SetDefault("smtp-timeout", defaultSMTPTimeout)
	v.SetDefault("mail-from", "")
	v.SetDefault("mail-from-name", model.DefaultFromName)
	v.SetDefault("default-subject", model.DefaultSubject)
	v.SetDefault("default-body", model.DefaultBody)
	v.SetDefault("dispatch-concurrency", defaultDispatchConcurrency)
	v.SetDefault("strict-bindings", true)
	v.SetDefault("history-retention", defaultHistoryRetention)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(shareDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", logging.DefaultFile())
	v.SetDefault("log-console", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "slipmail", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return cfg, fmt.Errorf("invalid smtp-port: %d", cfg.SMTPPort)
	}
	if cfg.DispatchConcurrency < 1 {
		return cfg, fmt.Errorf("invalid dispatch-concurrency: %d", cfg.DispatchConcurrency)
	}
	if _, err := mailer.ParseTLSPolicy(cfg.SMTPTLS); err != nil {
		return cfg, fmt.Errorf("invalid smtp-tls: %w", err)
	}
	if cfg.MailFrom != "" {
		if cfg.MailFrom, err = model.ValidateEmail(cfg.MailFrom); err != nil {
			return cfg, fmt.Errorf("invalid mail-from: %w", err)
		}
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log-level: %w", err)
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.DataDir = expandHome(home, cfg.DataDir)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)
	cfg.LogFile = expandHome(home, cfg.LogFile)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://" + cfg.APIAddr
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func mailerConfig(cfg appConfig) mailer.Config {
	return mailer.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		TLSPolicy:   cfg.SMTPTLS,
		Timeout:     cfg.SMTPTimeout,
		FromAddress: cfg.MailFrom,
		FromName:    cfg.MailFromName,
	}
}

func runTestMail(cfg appConfig) error {
	if cfg.MailFrom == "" {
		return fmt.Errorf("mail-from is not set")
	}
	logger, cleanup, err := logging.New(logging.Config{Level: cfg.LogLevel, Console: true})
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := mailer.New(mailerConfig(cfg), logger)
	if err != nil {
		return err
	}

	timeout := 2 * cfg.SMTPTimeout
	if timeout <= 0 {
		timeout = 2 * defaultSMTPTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.SendTest(ctx)
}
