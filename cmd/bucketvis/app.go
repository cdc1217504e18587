package main

import (
	"context"
	"os"

	"github.com/koustreak/bucketvis/internal/config"
	"github.com/koustreak/bucketvis/internal/credcache"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore/minio"
	"github.com/koustreak/bucketvis/internal/identity"
	"github.com/koustreak/bucketvis/internal/links"
	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/koustreak/bucketvis/internal/metrics"
	"github.com/koustreak/bucketvis/internal/notify"
	"github.com/koustreak/bucketvis/internal/notify/mysql"
	"github.com/koustreak/bucketvis/internal/notify/postgres"
	"github.com/koustreak/bucketvis/internal/visibility"
)

// app holds the services shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	store   *minio.Driver
	sink    notify.Multi
	vis     *visibility.Service
	links   *links.Service

	closers []func()
}

// newApp loads the configuration and wires the services. When ping is set
// the storage backend must be reachable.
func newApp(ctx context.Context, ping bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.Log.Output = os.Stderr

	a := &app{cfg: cfg, log: logger.New(&cfg.Log), metrics: metrics.Default()}
	logger.SetGlobal(a.log)

	source, err := a.credentialSource()
	if err != nil {
		return nil, err
	}

	if ping {
		a.store, err = minio.New(ctx, &cfg.Storage, source)
		if err != nil {
			return nil, err
		}
	} else {
		a.store = minio.NewLazy(&cfg.Storage, source)
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })

	a.sink = notify.Multi{notify.NewLogSink(a.log)}
	if err := a.openJournal(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.sink = append(a.sink, notify.NewMemory(100))

	a.vis = visibility.New(a.store,
		visibility.WithSink(a.sink),
		visibility.WithLogger(a.log),
		visibility.WithMetrics(a.metrics),
	)

	base, err := cfg.Storage.BaseURL()
	if err != nil {
		a.close()
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "storage.public_url", err)
	}
	loc, err := cfg.Links.Location()
	if err != nil {
		a.close()
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "links.timezone", err)
	}
	a.links = links.New(a.vis, a.store, base,
		links.WithTTL(cfg.Links.PresignTTL.Std()),
		links.WithLabeler(links.NewLabeler(cfg.Links.Locale, loc)),
		links.WithLogger(a.log),
		links.WithMetrics(a.metrics),
	)

	return a, nil
}

func (a *app) credentialSource() (credcache.Source, error) {
	c := a.cfg.Credentials

	var x credcache.Exchanger
	switch c.Mode {
	case config.CredentialsStatic:
		return credcache.NewStatic(credcache.Credentials{
			AccessKeyID:     c.AccessKey,
			SecretAccessKey: c.SecretKey,
			SessionToken:    c.SessionToken,
		}), nil
	case config.CredentialsSTS:
		x = &credcache.STSExchanger{Endpoint: c.Endpoint, RoleARN: c.RoleARN, Duration: c.Duration.Std()}
	case config.CredentialsJSON:
		x = &credcache.JSONExchanger{Endpoint: c.Endpoint, Duration: c.Duration.Std()}
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, "unknown credentials mode "+c.Mode)
	}

	return credcache.New(identityProvider(a.cfg.Identity), x,
		credcache.WithMinValidity(c.MinValidity.Std()),
		credcache.WithLogger(a.log),
		credcache.WithMetrics(a.metrics),
	), nil
}

func identityProvider(c config.IdentityConfig) identity.Provider {
	switch c.Source {
	case config.IdentityStatic:
		return identity.NewStatic(c.Token)
	case config.IdentityFile:
		return identity.NewFile(c.File)
	default:
		return identity.NewEnv(c.Env)
	}
}

// openJournal adds the configured SQL journal to the sink chain.
func (a *app) openJournal(ctx context.Context) error {
	switch a.cfg.Journal.Driver {
	case "postgres":
		j, err := postgres.New(ctx, &a.cfg.Journal)
		if err != nil {
			return err
		}
		a.sink = append(a.sink, j)
		a.closers = append(a.closers, j.Close)
	case "mysql":
		j, err := mysql.New(ctx, &a.cfg.Journal)
		if err != nil {
			return err
		}
		a.sink = append(a.sink, j)
		a.closers = append(a.closers, func() { _ = j.Close() })
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
