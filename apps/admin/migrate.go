package main

import (
	"github.com/pkg/errors"

	"github.com/speddy/speddy/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errors.New("migrate needs a SQL database")
	}
	return migrateFunc(cli.db, args[0], args[1:]...)
}
