package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/kilabu/apps/shared"
	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
	logsvc "github.com/trezcool/kilabu/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	storage, err := shared.OpenStorage(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal("setting up storage", err)
	}

	// start CLI
	cli := commandLine{
		conf:   conf,
		db:     storage.DB,
		svc:    attendance.NewService(storage.Store, attendance.ServiceDeps{Conf: conf, Logger: logger}),
		out:    os.Stdout,
		logger: logger,
	}
	err = cli.run(os.Args)
	if cerr := storage.Close(); cerr != nil {
		logger.Error("closing storage", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}
