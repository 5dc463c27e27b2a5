package app

import (
	"context"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start(errCh chan<- error) error
	Shutdown(ctx context.Context) error
}

// Background is a scheduled job running next to the server.
type Background interface {
	Start()
	Stop(ctx context.Context)
}

type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	jobs    []Background
	errCh   chan error
}

func New(lg logger.Logger, httpSrv HTTPServer, jobs ...Background) *App {
	return &App{log: lg, httpSrv: httpSrv, jobs: jobs, errCh: make(chan error, 1)}
}

func (a *App) Start() error {
	a.log.Debugf("App started begin...")

	if err := a.httpSrv.Start(a.errCh); err != nil {
		return err
	}
	for _, j := range a.jobs {
		j.Start()
	}

	a.log.Infof("App started")
	return nil
}

func (a *App) Errors() <-chan error {
	return a.errCh
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debugf("App stopped begin...")

	for _, j := range a.jobs {
		j.Stop(ctx)
	}
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	a.log.Infof("App stopped")
	return nil
}
