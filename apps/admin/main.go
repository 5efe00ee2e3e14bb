package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/sgacop30/sga/apps/di"
	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
)

func main() {
	conf := core.NewConfig()
	c := di.New(conf)

	var (
		cli   *commandLine
		store *di.Storage
	)
	err := c.Invoke(func(
		logger core.Logger,
		storage *di.Storage,
		usrSvc user.ServiceInterface,
		agendaSvc agenda.ServiceInterface,
		passeSvc passe.ServiceInterface,
		notificationSvc notification.ServiceInterface,
		validate *validator.Validate,
		clock clockwork.Clock,
	) {
		core.ParseEmailTemplates(logger, false)
		user.LoadCommonPasswords(logger)

		cli = &commandLine{
			usrSvc:          usrSvc,
			agendaSvc:       agendaSvc,
			passeSvc:        passeSvc,
			notificationSvc: notificationSvc,
			validate:        validate,
			clock:           clock,
			out:             os.Stdout,
		}
		store = storage
		if storage.DB != nil {
			cli.db = storage.DB.DB
		}
	})
	if err != nil {
		log.Fatalf("starting admin: %v", err)
	}

	err = cli.run(os.Args)
	if cerr := store.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "closing database: %s\n", cerr)
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
