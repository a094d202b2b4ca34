package main

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/kilabu/apps/api/echo"
	"github.com/trezcool/kilabu/apps/shared"
	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
	logsvc "github.com/trezcool/kilabu/services/logger"
	metricsvc "github.com/trezcool/kilabu/services/metrics"
)

type (
	NewConfigFunc func() *core.Config

	StoreLoggerParam struct {
		dig.In
		Logger core.Logger `name:"storeLogger"`
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

func newStoreLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam StoreLoggerParam) (*shared.Storage, error) {
	storage, err := shared.OpenStorage(context.Background(), conf, loggerParam.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "setting up storage")
	}
	return storage, nil
}

func newCoreMetrics(m *metricsvc.PrometheusMetrics) core.Metrics { return m }

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	attendance.InitValidators(validate, translator)
	return validate, translator
}

func newAttendanceService(
	storage *shared.Storage,
	conf *core.Config,
	logger core.Logger,
	metrics core.Metrics,
	validate *validator.Validate,
) *attendance.Service {
	return attendance.NewService(storage.Store, attendance.ServiceDeps{
		Conf:     conf,
		Logger:   logger,
		Metrics:  metrics,
		Validate: validate,
	})
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	svc *attendance.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		AttendanceSvc: svc,
		Validate:      validate,
		Translator:    translator,
	})
}

// newContainer returns the dependency injection container of the API.
func newContainer(newConfig NewConfigFunc) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStoreLogger, dig.Name("storeLogger")))
	must(c.Provide(metricsvc.NewPrometheusMetrics))
	must(c.Provide(newCoreMetrics))
	must(c.Provide(newStorage))
	must(c.Provide(newValidator))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
