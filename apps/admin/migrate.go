package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/gradebook/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(args []string) error {
	if err := database.PrepareGoose(cli.db); err != nil {
		return err
	}
	return gooseRunFunc(context.Background(), args[0], cli.db.DB, database.MigrationsDir, args[1:]...)
}
