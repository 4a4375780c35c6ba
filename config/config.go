// Package config loads the notifier settings from an INI file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/ini/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "1557.ini"

// Dispatch modes.
const (
	ModeSet   = "set"
	ModeLines = "lines"
)

const (
	defaultBaseURL  = "https://1557.kyiv.ua"
	defaultTimeout  = 30 * time.Second
	defaultCooldown = time.Hour
)

// Config holds all settings for one run.
type Config struct {
	Portal   Portal
	Telegram Telegram
	Gmail    Gmail
	Brevo    Brevo
	Storage  Storage
	Bot      Bot
}

// Portal is the [1557] section.
type Portal struct {
	Phone        string
	Password     string
	BaseURL      string
	Timeout      time.Duration
	AllAddresses bool
}

// Telegram is the [telegram] section.
type Telegram struct {
	Token  string
	Chat   string
	Admin  string
	APIURL string
}

// Gmail is the optional [gmail] section. Admin alerts go by email when To is set.
type Gmail struct {
	To          string
	Credentials string
}

// Brevo is the optional [brevo] section, used for admin alerts when [gmail] is not set.
type Brevo struct {
	APIKey string
	From   string
	To     string
}

// Storage is the [storage] section. A bucket takes precedence over the directory.
type Storage struct {
	Dir    string
	Bucket string
}

// Bot is the [bot] section.
type Bot struct {
	Mode     string
	Cooldown time.Duration
	DryRun   bool
}

// Load reads the INI file at path, expanding ${VAR} references from the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data := ini.New()
	data.WithOptions(ini.ParseEnv)
	if err := data.LoadFiles(path); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	timeout, err := duration(data, "1557.timeout", defaultTimeout)
	if err != nil {
		return nil, err
	}
	cooldown, err := duration(data, "bot.cooldown", defaultCooldown)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Portal: Portal{
			Phone:        data.String("1557.phone"),
			Password:     data.String("1557.pass"),
			BaseURL:      data.String("1557.base_url", defaultBaseURL),
			Timeout:      timeout,
			AllAddresses: data.Bool("1557.all_addresses", false),
		},
		Telegram: Telegram{
			Token:  data.String("telegram.token"),
			Chat:   data.String("telegram.chat"),
			Admin:  data.String("telegram.admin"),
			APIURL: data.String("telegram.api_url"),
		},
		Gmail: Gmail{
			To:          data.String("gmail.to"),
			Credentials: data.String("gmail.credentials"),
		},
		Brevo: Brevo{
			APIKey: data.String("brevo.api_key"),
			From:   data.String("brevo.from"),
			To:     data.String("brevo.to"),
		},
		Storage: Storage{
			Dir:    data.String("storage.dir", "."),
			Bucket: data.String("storage.bucket"),
		},
		Bot: Bot{
			Mode:     strings.ToLower(data.String("bot.mode", ModeSet)),
			Cooldown: cooldown,
			DryRun:   data.Bool("bot.dry_run", false),
		},
	}
	if cfg.Telegram.Admin == "" {
		cfg.Telegram.Admin = cfg.Telegram.Chat
	}

	return cfg, nil
}

func duration(data *ini.Ini, key string, def time.Duration) (time.Duration, error) {
	raw := data.String(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive, got %s", key, raw)
	}
	return d, nil
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Portal.Phone == "" {
		errs = append(errs, errors.New("[1557] phone is required"))
	}
	if c.Portal.Password == "" {
		errs = append(errs, errors.New("[1557] pass is required"))
	}
	if !c.Bot.DryRun {
		if c.Telegram.Token == "" {
			errs = append(errs, errors.New("[telegram] token is required"))
		}
		if c.Telegram.Chat == "" {
			errs = append(errs, errors.New("[telegram] chat is required"))
		}
	}
	if c.Brevo.To != "" && (c.Brevo.APIKey == "" || c.Brevo.From == "") {
		errs = append(errs, errors.New("[brevo] api_key and from are required when to is set"))
	}
	if c.Bot.Mode != ModeSet && c.Bot.Mode != ModeLines {
		errs = append(errs, fmt.Errorf("[bot] mode must be %q or %q, got %q", ModeSet, ModeLines, c.Bot.Mode))
	}
	if c.Storage.Bucket == "" && c.Storage.Dir == "" {
		errs = append(errs, errors.New("[storage] dir or bucket is required"))
	}
	return errors.Join(errs...)
}
