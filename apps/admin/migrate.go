package main

import (
	"errors"

	"github.com/trezcool/kilabu/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errors.New("migrations need the postgres store (ATTENDANCE_STOREBACKEND=postgres)")
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return runMigrationsFunc(cli.db, args[0], arguments...)
}
