// Package app is the example embedding facade: the thin wiring a
// process hosting wsgiboost actually writes, adapted from the
// teacher's App/Run/awaitSignal shape onto the server façade.
package app

import (
	"github.com/sirupsen/logrus"

	"github.com/searchktools/wsgiboost/config"
	"github.com/searchktools/wsgiboost/core/observability"
	"github.com/searchktools/wsgiboost/core/server"
	"github.com/searchktools/wsgiboost/core/wsgi"
)

// App owns the configured Server; callers install routes/an
// application before calling Run.
type App struct {
	cfg *config.Config
	srv *server.Server
}

// New builds an App and its underlying Server from cfg.
func New(cfg *config.Config) *App {
	log := observability.NewLogger(levelFor(cfg.Env))
	srv := server.New(server.Options{
		Addr:               cfg.Addr(),
		Executors:          cfg.Executors,
		ReuseAddress:       cfg.ReuseAddress,
		HeaderTimeout:      cfg.HeaderTimeout,
		ContentTimeout:     cfg.ContentTimeout,
		HostName:           cfg.HostName,
		URLScheme:          cfg.URLScheme,
		UseGzip:            cfg.UseGzip,
		StaticCacheControl: cfg.StaticCacheControl,
		CompressWorkers:    cfg.CompressWorkers,
		TuneGC:             cfg.TuneGC,
		Logger:             log,
	})
	return &App{cfg: cfg, srv: srv}
}

// Server returns the underlying façade for route/app registration.
func (a *App) Server() *server.Server {
	return a.srv
}

// SetApp installs the hosted application.
func (a *App) SetApp(wsgiApp wsgi.App) error {
	return a.srv.SetApp(wsgiApp)
}

// AddStaticRoute registers a static content root under prefix.
func (a *App) AddStaticRoute(prefix, root string) error {
	return a.srv.AddStaticRoute(prefix, root)
}

// Run starts the server (and, if a TLS cert is configured, the HTTPS
// listener) and blocks forever; the server installs its own
// SIGINT/SIGTERM/SIGQUIT handler and calls Stop from there.
func (a *App) Run() error {
	if err := a.srv.Start(); err != nil {
		return err
	}
	if a.cfg.TLSCertFile != "" {
		if err := a.srv.StartTLS(a.cfg.TLSAddr(), a.cfg.TLSCertFile, a.cfg.TLSKeyFile, a.cfg.TLSKeyPassphrase); err != nil {
			return err
		}
	}
	select {}
}

func levelFor(env string) logrus.Level {
	if env == "production" {
		return logrus.InfoLevel
	}
	return logrus.DebugLevel
}
