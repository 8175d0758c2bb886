package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nhle/inboxsync/internal/credential"
	"github.com/nhle/inboxsync/internal/logging"
	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/store"
	appsync "github.com/nhle/inboxsync/internal/sync"
	"github.com/nhle/inboxsync/internal/transport"
)

// rootOptions carries the global flags.
type rootOptions struct {
	configPath string
	logLevel   string
	user       string

	stdout io.Writer
	stderr io.Writer
}

// app is the configured process state shared by the commands.
type app struct {
	configPath string
	cfg        *model.AppConfig
	logger     zerolog.Logger
	secrets    credential.SecretStore
}

// load reads .env, the config file and builds the logger.
func (o *rootOptions) load() (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	path := o.configPath
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Log, o.stderr)
	if err != nil {
		return nil, err
	}

	return &app{
		configPath: path,
		cfg:        cfg,
		logger:     logger,
		secrets:    credential.NewKeyring(),
	}, nil
}

// resolveUser returns the --user flag, or the only configured account.
func (o *rootOptions) resolveUser(cfg *model.AppConfig) (string, error) {
	if o.user != "" {
		return o.user, nil
	}
	if len(cfg.Accounts) == 1 {
		return cfg.Accounts[0].User, nil
	}
	return "", fmt.Errorf("--user is required with %d configured accounts: %w",
		len(cfg.Accounts), model.ErrInvalidArgument)
}

// openEngine opens the cache and wires the engine. The returned func closes
// the cache.
func (a *app) openEngine() (*appsync.Engine, func(), error) {
	cache, err := store.Open(a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	dialer := transport.NewIMAPDialer(transport.Options{
		SessionTimeout:  seconds(a.cfg.IMAP.TimeoutSec),
		DialTimeout:     seconds(a.cfg.IMAP.DialTimeoutSec),
		RequireStartTLS: a.cfg.IMAP.RequireStartTLS,
		Logger:          a.logger.With().Str("component", "imap").Logger(),
	})
	resolver := credential.NewResolver(a.cfg.Accounts, a.secrets)

	engine := appsync.New(
		cache, dialer, resolver,
		appsync.OptionsFromConfig(a.cfg.IMAP),
		a.logger.With().Str("component", "engine").Logger(),
	)

	closeFn := func() {
		if err := cache.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing cache")
		}
	}
	return engine, closeFn, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
