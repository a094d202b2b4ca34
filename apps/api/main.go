package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"go.uber.org/dig"

	echoapi "github.com/trezcool/kilabu/apps/api/echo"
	"github.com/trezcool/kilabu/apps/shared"
	"github.com/trezcool/kilabu/core"
	metricsvc "github.com/trezcool/kilabu/services/metrics"
)

type appParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	StoreLogger core.Logger `name:"storeLogger"`
	Metrics     *metricsvc.PrometheusMetrics
	Storage     *shared.Storage
	Server      *echoapi.Server
}

func main() {
	c := newContainer(core.NewConfig)
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(p appParams) {
	conf, logger := p.Conf, p.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %v, store %q", conf, conf.Attendance.StoreBackend))
	defer func() {
		if err := p.Storage.Close(); err != nil {
			p.StoreLogger.Error("Failed to close", err)
		}
	}()
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus exposition of the attendance metrics.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.DefaultServeMux.Handle("/metrics", p.Metrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := p.Server
	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
