// Command kyiv1557-notifier checks the Kyiv 1557 portal once and forwards new messages to Telegram.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	gcs "cloud.google.com/go/storage"
	"github.com/urfave/cli/v2"

	"kyiv1557-notifier/config"
	"kyiv1557-notifier/notify"
	"kyiv1557-notifier/poll"
	"kyiv1557-notifier/scraper"
	"kyiv1557-notifier/storage"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "kyiv1557-notifier",
		Usage:   "Forward new 1557.kyiv.ua portal messages to Telegram",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "Path to the INI config file",
				EnvVars: []string{"KYIV1557_CONFIG"},
			},
			&cli.BoolFlag{Name: "debug", Usage: "Human-readable logs at debug level"},
		},
		Action: func(c *cli.Context) error {
			logger := newLogger(c.App.Writer, c.Bool("debug"))
			slog.SetDefault(logger)

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(c.Context, cfg, logger)
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// run wires the components for one pass and releases them on every exit path.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	blobs, closeBlobs, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	portal, err := scraper.New(scraper.Options{
		BaseURL: cfg.Portal.BaseURL,
		Timeout: cfg.Portal.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create portal client: %w", err)
	}
	defer portal.Close()

	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	monitor := poll.New(
		poll.Options{
			Phone:        cfg.Portal.Phone,
			Password:     cfg.Portal.Password,
			Positional:   cfg.Bot.Mode == config.ModeLines,
			AllAddresses: cfg.Portal.AllAddresses,
		},
		portal,
		storage.NewSessionStore(blobs),
		storage.NewStateCache(blobs),
		storage.NewFailureMarker(blobs, cfg.Bot.Cooldown),
		sender,
		logger,
	)
	return monitor.Run(ctx)
}

// openStorage picks Cloud Storage when a bucket is configured, the local directory otherwise.
func openStorage(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*storage.Store, func(), error) {
	if cfg.Bucket == "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage directory: %w", err)
		}
		logger.Info("Using local storage", "storage_path", cfg.Dir)
		return storage.New(nil, "", cfg.Dir, logger), func() {}, nil
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	logger.Info("Using Cloud Storage", "bucket", cfg.Bucket)
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	return storage.New(client, cfg.Bucket, "", logger), closeClient, nil
}

// newSender routes messages to Telegram and alerts to Gmail, Brevo or Telegram, in that order of preference.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*notify.Sender, error) {
	if cfg.Bot.DryRun {
		logger.Info("Dry run enabled, messages are logged instead of sent")
		mock := notify.NewMockProvider(logger)
		return notify.New(mock, cfg.Telegram.Chat, mock, cfg.Telegram.Admin, logger), nil
	}

	telegram := notify.NewTelegramProvider(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Portal.Timeout, logger)

	switch {
	case cfg.Gmail.To != "":
		service, err := notify.NewGmailService(ctx, cfg.Gmail.Credentials)
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		logger.Info("Admin alerts go by email", "provider", "gmail", "to", cfg.Gmail.To)
		return notify.New(telegram, cfg.Telegram.Chat, notify.NewGmailProvider(service, logger), cfg.Gmail.To, logger), nil
	case cfg.Brevo.To != "":
		brevo := notify.NewBrevoProvider("", cfg.Brevo.APIKey, cfg.Brevo.From, cfg.Portal.Timeout, logger)
		logger.Info("Admin alerts go by email", "provider", "brevo", "to", cfg.Brevo.To)
		return notify.New(telegram, cfg.Telegram.Chat, brevo, cfg.Brevo.To, logger), nil
	default:
		return notify.New(telegram, cfg.Telegram.Chat, telegram, cfg.Telegram.Admin, logger), nil
	}
}
