package main

import (
	"database/sql"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// systemActor stands for the operator running the CLI. Its zero ID never matches a stored user.
	systemActor = user.User{IsSuperuser: true, IsStaff: true, IsActive: true}
)

type commandLine struct {
	db              *sql.DB // nil on the in-memory engine
	usrSvc          user.ServiceInterface
	agendaSvc       agenda.ServiceInterface
	passeSvc        passe.ServiceInterface
	notificationSvc notification.ServiceInterface
	validate        *validator.Validate
	clock           clockwork.Clock
	out             io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "SGA COP 30 administration",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          usageErr,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.setRoleCmd(),
		cli.sendRemindersCmd(),
		cli.cleanupNotificationsCmd(),
		cli.createPassesCmd(),
		cli.deletePassesCmd(),
		cli.addEventCmd(),
		cli.addAnnouncementCmd(),
	)
	return root
}

// run executes the command line args, program name included.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}

func usageErr(cmd *cobra.Command, _ []string) error {
	_ = cmd.Usage()
	return errHelp
}

func (cli *commandLine) printf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format+"\n", a...)
}

func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", usageErr(cmd, nil)
	}
	return string(pwd), nil
}
