package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tradesense/tradesense-go/api"
	"github.com/tradesense/tradesense-go/apierror"
	"github.com/tradesense/tradesense-go/auth"
	"github.com/tradesense/tradesense-go/cache/redis"
	"github.com/tradesense/tradesense-go/config"
	"github.com/tradesense/tradesense-go/logger"
	"github.com/tradesense/tradesense-go/observability"
)

// reloginHint is printed when a command ends the session
const reloginHint = "Run 'tradesense login' to start a new session."

// session is everything a command needs to talk to the API
type session struct {
	cfg       *config.Config
	log       logger.Logger
	store     *auth.MemoryStore
	client    *api.Client
	storeDesc string
	closers   []func() error
}

func openSession(cmd *cobra.Command, opts *GlobalOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	errOut := cmd.ErrOrStderr()
	log := logger.NewWithWriter(errOut, cfg.Log.Level, cfg.Log.Pretty).
		WithFields(map[string]any{"app": cfg.App.Name})

	s := &session{cfg: cfg, log: log}

	provider, err := observability.NewProvider(observability.Config{
		Enabled:        cfg.Observability.Enabled,
		Exporter:       cfg.Observability.Exporter,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Writer:         errOut,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error {
		return observability.Shutdown(provider, observability.DefaultShutdownTimeout)
	})

	persister, err := s.newPersister(cmd.Context())
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.store = auth.NewMemoryStore(auth.WithPersister(persister), auth.WithStoreLogger(log))
	if err := s.store.Restore(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("Could not restore saved session")
	}
	unsubscribe := s.store.Subscribe(func(creds auth.Credentials) {
		log.Info().Bool("logged_in", creds.IsAuthenticated()).Msg("Session credentials updated")
	})
	s.closers = append(s.closers, func() error {
		unsubscribe()
		return nil
	})

	s.client, err = api.New(api.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		MaxRetries:     cfg.API.Retries,
		RetryDelay:     cfg.API.RetryDelay,
		RefreshPath:    cfg.Auth.RefreshPath,
		RefreshTimeout: cfg.Auth.RefreshTimeout,
	}, s.store,
		api.WithLogger(log),
		api.WithSessionExpired(func() {
			fmt.Fprintln(errOut, apierror.MessageSessionExpired, reloginHint)
		}),
	)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func loadConfig(opts *GlobalOptions) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.BaseURL != "" {
		cfg.API.BaseURL = opts.BaseURL
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPersister builds the configured session store backend; memory has none
func (s *session) newPersister(ctx context.Context) (auth.Persister, error) {
	switch s.cfg.Session.Store {
	case config.SessionFile:
		path, err := s.cfg.SessionFilePath()
		if err != nil {
			return nil, err
		}
		s.storeDesc = "file " + path
		return auth.NewFilePersister(path), nil
	case config.SessionRedis:
		rc := s.cfg.Cache.Redis
		client, err := redis.NewClient(&rc)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		if err := client.Health(ctx); err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		s.storeDesc = fmt.Sprintf("redis %s key %s", rc.Address(), s.cfg.Session.Key)
		return auth.NewCachePersister(client, s.cfg.Session.Key, s.cfg.Session.TTL), nil
	default:
		s.storeDesc = "memory"
		return nil, nil
	}
}

// Close releases the session store and flushes telemetry
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withSession runs fn against an open session and reports normalized errors
func withSession(cmd *cobra.Command, opts *GlobalOptions, fn func(ctx context.Context, s *session, out io.Writer) error) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("Cleanup failed")
		}
	}()

	if err := fn(cmd.Context(), s, cmd.OutOrStdout()); err != nil {
		if n := apierror.Normalize(err); n != nil {
			return n
		}
		return err
	}
	return nil
}
