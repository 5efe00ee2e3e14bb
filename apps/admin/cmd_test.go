package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/user"
	logsvc "github.com/sgacop30/sga/services/logger"
	"github.com/sgacop30/sga/testutil"
)

const testPwd = "Xk9#mPq2vL"

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(logsvc.NewNopLogger(), true)
	os.Exit(m.Run())
}

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv()
	validate, _ := testutil.NewValidator()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	out := new(bytes.Buffer)
	return &commandLine{
		db:              db,
		usrSvc:          env.UserSvc,
		agendaSvc:       env.AgendaSvc,
		passeSvc:        env.PasseSvc,
		notificationSvc: env.NotificationSvc,
		validate:        validate,
		clock:           env.Clock,
		out:             out,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
	extra      interface{}
}

// mockPassword makes the next prompts answer pwd.
func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func (tt cliTest) run(t *testing.T, cli *commandLine, out *bytes.Buffer) error {
	t.Helper()
	out.Reset()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
		if tt.wantOut != "" {
			assert.Contains(t, out.String(), tt.wantOut)
		}
	}
	return err
}

func Test_commandLine_run(t *testing.T) {
	cli, _, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "help flag", args: []string{"--help"}, wantOut: "resetpassword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli, out)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out := setup(t)

	defer func(orig func(*sql.DB, string, ...string) error) { gooseRunFunc = orig }(gooseRunFunc)
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "event_rooms", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli, out)
		})
	}

	t.Run("in-memory engine", func(t *testing.T) {
		cli.db = nil
		cliTest{args: []string{"migrate", "up"}, wantErr: errNoDatabase}.run(t, cli, out)
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env, out := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken@cop30.br", testPwd, user.PapelNone, true)

	type extra struct {
		pwd       string
		wantPapel string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no name", args: []string{"adduser", "--email", "ana@cop30.br"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--email", "ana@cop30.br", "--name", "Ana Souza"}, wantErr: errHelp},
		{
			name:       "weak password",
			args:       []string{"adduser", "--email", "ana@cop30.br", "--name", "Ana Souza"},
			extra:      extra{pwd: "12345678"},
			wantErrStr: "'password'",
		},
		{
			name:       "invalid role",
			args:       []string{"adduser", "--email", "ana@cop30.br", "--name", "Ana Souza", "--role", "rei"},
			extra:      extra{pwd: testPwd},
			wantErrStr: "'papel'",
		},
		{
			name:       "email taken",
			args:       []string{"adduser", "--email", "Taken@cop30.br", "--name", "Ana Souza"},
			extra:      extra{pwd: testPwd},
			wantErrStr: user.ErrEmailExists.Error(),
		},
		{
			name:    "common user",
			args:    []string{"adduser", "--email", "ana@cop30.br", "--name", "Ana Souza"},
			extra:   extra{pwd: testPwd, wantPapel: user.PapelNone},
			wantOut: "user ana@cop30.br created",
		},
		{
			name:    "manager",
			args:    []string{"adduser", "--email", "Bia@cop30.br", "--name", "Bia Lima", "--role", "gerente"},
			extra:   extra{pwd: testPwd, wantPapel: user.PapelManager},
			wantOut: "papel gerente",
		},
		{
			name:    "superuser",
			args:    []string{"adduser", "--email", "root@cop30.br", "--name", "Root", "--superuser"},
			extra:   extra{pwd: testPwd, wantPapel: user.PapelSuperuser},
			wantOut: "papel superuser",
		},
	}
	for _, tt := range tests {
		ex, _ := tt.extra.(extra)
		mockPassword(ex.pwd)

		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t, cli, out); err != nil || ex.wantPapel == "" {
				return
			}
			email := tt.args[2]
			usr, err := env.UserSvc.GetByEmail(context.Background(), email)
			require.NoError(t, err)
			assert.Equal(t, ex.wantPapel, usr.Papel())
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword(ex.pwd))
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env, out := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "Ana Souza", "ana@cop30.br", testPwd, user.PapelNone, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "lol@cop30.br"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@cop30.br"}, extra: extra{pwd: "N3w#Secret"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", usr.Email}, extra: extra{pwd: "N3w#Secret"}, wantOut: "password updated"},
		{name: "reset with mixed case email", args: []string{"resetpassword", "--email", "ANA@cop30.br"}, extra: extra{pwd: "0th3r#Secret"}},
	}
	for _, tt := range tests {
		ex, _ := tt.extra.(extra)
		mockPassword(ex.pwd)

		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t, cli, out); err != nil {
				return
			}
			refreshed, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(ex.pwd))
		})
	}
}

func Test_commandLine_setRole(t *testing.T) {
	cli, env, out := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "Ana Souza", "ana@cop30.br", testPwd, user.PapelNone, true)

	tests := []cliTest{
		{name: "no args", args: []string{"setrole"}, wantErr: errHelp},
		{name: "no role", args: []string{"setrole", "--email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"setrole", "--email", "lol@cop30.br", "--role", "gerente"}, wantErr: user.ErrNotFound},
		{name: "invalid role", args: []string{"setrole", "--email", usr.Email, "--role", "rei"}, wantErrStr: user.ErrInvalidPapel.Error()},
		{name: "manager", args: []string{"setrole", "--email", usr.Email, "--role", "Gerente"}, wantOut: "ana@cop30.br is now gerente"},
		{name: "events staff", args: []string{"setrole", "--email", usr.Email, "--role", "eventos"}, wantOut: "is now eventos"},
		{name: "back to none", args: []string{"setrole", "--email", usr.Email, "--role", "none"}, wantOut: "is now none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli, out)
		})
	}

	refreshed, err := env.UserSvc.GetByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PapelNone, refreshed.Papel())
	assert.False(t, refreshed.IsStaff)
}

func Test_commandLine_passes(t *testing.T) {
	cli, env, out := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Ana Souza", "ana@cop30.br", testPwd, user.PapelNone, true)
	testutil.CreateUser(t, env.UserRepo, "Bia Lima", "bia@cop30.br", testPwd, user.PapelManager, true)
	testutil.CreateUser(t, env.UserRepo, "Caio Reis", "caio@cop30.br", testPwd, user.PapelNone, false)

	tests := []cliTest{
		{name: "create for active users", args: []string{"createpasses"}, wantOut: "2 passes created"},
		{name: "create again", args: []string{"createpasses"}, wantOut: "0 passes created"},
		{name: "delete", args: []string{"deletepasses"}, wantOut: "2 passes deleted"},
		{name: "delete again", args: []string{"deletepasses"}, wantOut: "0 passes deleted"},
		{name: "recreate", args: []string{"createpasses"}, wantOut: "2 passes created"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli, out)
		})
	}
}

func Test_commandLine_addEvent(t *testing.T) {
	cli, env, out := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"addevent"}, wantErr: errHelp},
		{name: "no times", args: []string{"addevent", "--title", "Painel", "--location", "Blue Zone"}, wantErr: errHelp},
		{
			name:       "bad start",
			args:       []string{"addevent", "--title", "Painel", "--location", "Blue Zone", "--start", "amanhã", "--end", "2025-11-13 11:00"},
			wantErrStr: `invalid time "amanhã"`,
		},
		{
			name:       "end before start",
			args:       []string{"addevent", "--title", "Painel", "--location", "Blue Zone", "--start", "2025-11-13 11:00", "--end", "2025-11-13 10:00"},
			wantErrStr: agenda.ErrInvalidTimes.Error(),
		},
		{
			name: "created",
			args: []string{
				"addevent", "--title", " Painel de Clima ", "--location", "Blue Zone",
				"--start", "2025-11-13 10:00", "--end", "2025-11-13T11:30:00-03:00",
				"--speaker", "Marina", "--important", "--lat", "-1.4558", "--lng", "-48.4902",
			},
			wantOut: "event 1 created: Painel de Clima",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli, out)
		})
	}

	events, err := env.AgendaSvc.ListMapEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	evt := events[0]
	assert.Equal(t, "Painel de Clima", evt.Title)
	assert.Equal(t, "Marina", evt.Speaker)
	assert.True(t, evt.Important)
	assert.Equal(t, time.Date(2025, time.November, 13, 10, 0, 0, 0, time.UTC), evt.StartTime)
	assert.Equal(t, time.Date(2025, time.November, 13, 14, 30, 0, 0, time.UTC), evt.EndTime)
	assert.Nil(t, evt.CreatedBy)
}

func Test_commandLine_notifications(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, env.UserRepo, "Ana Souza", "ana@cop30.br", testPwd, user.PapelNone, true)
	evt := testutil.CreateEvent(t, env.AgendaRepo, "Plenária", testutil.Now.Add(30*time.Minute))
	_, err := env.AgendaSvc.AddFavorite(ctx, usr.ID, evt.ID)
	require.NoError(t, err)

	tests := []cliTest{
		{name: "reminders", args: []string{"sendreminders"}, wantOut: "reminders: 1 created, 0 skipped, 1 pushed"},
		{name: "reminders again", args: []string{"sendreminders"}, wantOut: "reminders: 0 created, 1 skipped"},
		{name: "cleanup dry run", args: []string{"cleanupnotifications", "--dry-run"}, wantOut: "would delete 0 notifications"},
		{name: "cleanup", args: []string{"cleanupnotifications"}, wantOut: "deleted 0 notifications (read: 0, unread: 0, expired: 0)"},
		{name: "announcement: no args", args: []string{"addannouncement"}, wantErr: errHelp},
		{
			name:       "announcement: invalid level",
			args:       []string{"addannouncement", "--title", "Chuva", "--message", "Leve guarda-chuva", "--level", "urgente"},
			wantErrStr: "'nivel'",
		},
		{
			name:    "announcement",
			args:    []string{"addannouncement", "--title", "Chuva", "--message", "Leve guarda-chuva", "--level", "Alerta", "--pinned"},
			wantOut: "announcement 1 published",
		},
		{
			name:    "announcement with expiry",
			args:    []string{"addannouncement", "--title", "Feira", "--message", "Até amanhã", "--expires-in", "2h"},
			wantOut: "announcement 2 published",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli, out)
		})
	}

	list, err := env.NotificationSvc.List(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Unread)

	visible, err := env.NotificationSvc.ListVisibleAnnouncements(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "alerta", visible[0].Level)
	assert.True(t, visible[0].Pinned)

	all, err := env.NotificationRepo.ListAnnouncements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[1].ExpiresAt)
	assert.Equal(t, testutil.Now.Add(2*time.Hour), all[1].ExpiresAt.UTC())

	// expires by the injected clock, not the wall clock
	env.Clock.Advance(3 * time.Hour)
	visible, err = env.NotificationSvc.ListVisibleAnnouncements(ctx)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}
