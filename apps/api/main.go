package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"sync"

	"github.com/jonboulle/clockwork"

	echoapi "github.com/sgacop30/sga/apps/api/echo"
	"github.com/sgacop30/sga/apps/di"
	"github.com/sgacop30/sga/apps/worker"
	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/user"
	"github.com/sgacop30/sga/storage/database"
)

func main() {
	conf := core.NewConfig()
	c := di.New(conf)

	err := c.Invoke(func(
		logger core.Logger,
		storage *di.Storage,
		notificationSvc notification.ServiceInterface,
		clock clockwork.Clock,
		server *echoapi.Server,
	) {
		run(conf, logger, storage, notificationSvc, clock, server)
	})
	if err != nil {
		log.Fatalf("starting application: %v", err)
	}
}

func run(
	conf *core.Config,
	logger core.Logger,
	storage *di.Storage,
	notificationSvc notification.ServiceInterface,
	clock clockwork.Clock,
	server *echoapi.Server,
) {
	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	if l, ok := logger.(interface{ Sync() }); ok {
		defer l.Sync()
	}
	defer logger.Info("Application stopped")

	defer func() {
		if err := storage.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()
	if storage.DB != nil {
		if err := database.Migrate(storage.DB.DB); err != nil {
			logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
		}
	}

	core.ParseEmailTemplates(logger, conf.Debug)
	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Reminder & Cleanup Worker

	ctx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.NewScheduler(notificationSvc, logger, clock, conf.Notification.ReminderInterval).Run(ctx)
	}()
	defer func() {
		stopWorker()
		wg.Wait()
	}()

	// =========================================================================
	// Start API Service

	go server.Start()
	logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Host))

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
