package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/slipmail/slipmail/internal/backup"
	"github.com/slipmail/slipmail/internal/blobstore"
	"github.com/slipmail/slipmail/internal/dispatch"
	"github.com/slipmail/slipmail/internal/duckdb"
	"github.com/slipmail/slipmail/internal/httpserver"
	"github.com/slipmail/slipmail/internal/logging"
	"github.com/slipmail/slipmail/internal/mailer"
	"github.com/slipmail/slipmail/internal/registry"
	"github.com/slipmail/slipmail/internal/splitter"
)

// runServer starts the payslip API and blocks until SIGINT or SIGTERM.
func runServer(cfg appConfig) error {
	logger, cleanupLogger, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: cfg.LogConsole,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogger()

	logger.Info().Str("version", version).Str("commit", commit).Msg("starting slipmail")

	// Recipient directory and dispatch history
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	smtp, err := mailer.New(mailerConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}
	if err := smtp.Preflight(); err != nil {
		logger.Warn().Err(err).Msg("dispatch disabled until SMTP settings are fixed")
	}

	reg := registry.New()
	engine := dispatch.New(reg, blobs, smtp, dispatch.Config{
		FromAddress:      cfg.MailFrom,
		FromName:         cfg.MailFromName,
		DefaultSubject:   cfg.DefaultSubject,
		DefaultBody:      cfg.DefaultBody,
		Concurrency:      cfg.DispatchConcurrency,
		RejectDuplicates: cfg.StrictBindings,
	}, logger)
	engine.SetDirectory(store)
	engine.SetRecorder(store)

	// Start retention cleaner for automatic history expiry
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.HistoryRetention,
	}, logger)
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	// Start periodic backups when enabled.
	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupLocalDir,
		KeepLast: cfg.BackupKeepLast,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	apiServer := httpserver.NewServer(httpserver.Config{
		Addr:           cfg.APIAddr,
		PublicBaseURL:  cfg.PublicBaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StrictBindings: cfg.StrictBindings,
	}, httpserver.Deps{
		Splitter:   splitter.New(blobs, logger),
		Registry:   reg,
		Blobs:      blobs,
		Dispatcher: engine,
		Directory:  store,
		History:    store,
		Verifier:   smtp,
		Health:     store,
	}, logger)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, smtp.Preflight() == nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watchServe(gctx, apiServer.Err())
	})

	waitErr := g.Wait()
	if waitErr != nil {
		logger.Error().Err(waitErr).Msg("server: errgroup exited with error")
	}

	signal.Stop(sigCh)
	logShutdown(logger, store)
	return waitErr
}

// watchServe blocks until ctx ends or the API server stops serving.
func watchServe(ctx context.Context, serveErr <-chan error) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return fmt.Errorf("API server stopped: %w", err)
	}
}

func logShutdown(logger zerolog.Logger, store *duckdb.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := store.RecipientCount(ctx)
	if err != nil {
		logger.Info().Msg("shutting down")
		return
	}
	logger.Info().Int64("recipients", n).Msg("shutting down")
}

func printStartupBanner(cfg appConfig, smtpReady bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	cross := red.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦  ╦╔═╗╔╦╗╔═╗╦╦
    ╚═╗║  ║╠═╝║║║╠═╣║║
    ╚═╝╩═╝╩╩  ╩ ╩╩ ╩╩╩═╝`)

	ver := dim.Render("v" + version)
	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{"", logo, "    " + ver, "", separator, ""}

	lines = append(lines, bold.Render("    Gateway"), "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	lines = append(lines, fmt.Sprintf("    %s  Public URL     %s", check, dim.Render(cfg.PublicBaseURL)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Mail"), "")
	if smtpReady {
		lines = append(lines, fmt.Sprintf("    %s  SMTP           %s", check, cyan.Render(fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  SMTP           %s", cross, red.Render("not configured")))
	}
	if cfg.MailFrom != "" {
		lines = append(lines, fmt.Sprintf("    %s  Sender         %s", check, dim.Render(cfg.MailFrom)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Sender         %s", cross, red.Render("mail-from not set")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Concurrency    %s", check, dim.Render(fmt.Sprint(cfg.DispatchConcurrency))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  Directory      %s", check, dim.Render(shortenPath(cfg.DBPath))))
	lines = append(lines, fmt.Sprintf("    %s  Documents      %s", check, dim.Render(shortenPath(cfg.DataDir))))
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	if cfg.LogFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogFile))))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
