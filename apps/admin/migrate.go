package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sgacop30/sga/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

var errNoDatabase = errors.New("migrations need a postgres database")

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command",
		Long: `Run a goose migration command against the configured database.
Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, create NAME [go|sql], fix.`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErr(cmd, args)
			}
			if cli.db == nil {
				return errNoDatabase
			}
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}
