package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
	"github.com/sgacop30/sga/services/email"
	"github.com/sgacop30/sga/services/logger"
	"github.com/sgacop30/sga/services/push"
	"github.com/sgacop30/sga/storage/database/inmem"
)

// Now is the instant every Env clock starts at.
var Now = time.Date(2025, time.November, 12, 12, 0, 0, 0, time.UTC)

// Env holds services wired on in-memory storage and a fake clock.
type Env struct {
	Conf   *core.Config
	Logger core.Logger
	Clock  clockwork.FakeClock
	Push   *pushsvc.ConsoleService

	UserRepo         user.Repository
	AgendaRepo       agenda.Repository
	PasseRepo        passe.Repository
	NotificationRepo notification.Repository

	UserSvc         user.ServiceInterface
	AgendaSvc       agenda.ServiceInterface
	PasseSvc        passe.ServiceInterface
	NotificationSvc notification.ServiceInterface
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	clock := clockwork.NewFakeClockAt(Now)
	db := inmemdb.Open()

	env := &Env{
		Conf:             conf,
		Logger:           logger,
		Clock:            clock,
		Push:             pushsvc.NewConsoleService(logger),
		UserRepo:         inmemdb.NewUserRepository(db),
		AgendaRepo:       inmemdb.NewAgendaRepository(db),
		PasseRepo:        inmemdb.NewPasseRepository(db),
		NotificationRepo: inmemdb.NewNotificationRepository(db),
	}
	env.UserSvc = user.NewService(env.UserRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf, clock)
	env.AgendaSvc = agenda.NewService(env.AgendaRepo, clock)
	env.PasseSvc = passe.NewService(env.PasseRepo, env.UserSvc, conf, clock)
	env.NotificationSvc = notification.NewService(env.NotificationRepo, env.AgendaSvc, env.Push, logger, conf, clock)
	return env
}

// CreateUser stores a user with the given papel directly through the repository.
func CreateUser(t *testing.T, repo user.Repository, name, email, pwd, papel string, isActive bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := Now
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	switch papel {
	case user.PapelSuperuser:
		usr.IsSuperuser = true
		usr.IsStaff = true
	case user.PapelManager:
		usr.Role = user.RoleManager
		usr.IsStaff = true
	case user.PapelEvents:
		usr.Role = user.RoleEvents
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateEvent stores a one hour event starting at start.
func CreateEvent(t *testing.T, repo agenda.Repository, title string, start time.Time, coords ...float64) agenda.Event {
	t.Helper()
	evt := agenda.Event{
		Title:     title,
		Location:  "Parque da Cidade, Belém",
		StartTime: start.UTC(),
		EndTime:   start.Add(time.Hour).UTC(),
		Tags:      agenda.DefaultTags,
		CreatedAt: Now,
	}
	if len(coords) == 2 {
		evt.Latitude, evt.Longitude = &coords[0], &coords[1]
	}
	evt, err := repo.CreateEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("CreateEvent() failed: %v", err)
	}
	return evt
}

// NewValidator returns a validator with every custom tag registered and its English translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator, _ := ut.New(en.New(), en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}
