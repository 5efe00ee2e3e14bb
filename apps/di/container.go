package di

import (
	"context"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/sgacop30/sga/apps/api/echo"
	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
	emailsvc "github.com/sgacop30/sga/services/email"
	logsvc "github.com/sgacop30/sga/services/logger"
	pushsvc "github.com/sgacop30/sga/services/push"
	"github.com/sgacop30/sga/storage/database"
	inmemdb "github.com/sgacop30/sga/storage/database/inmem"
	pgrepos "github.com/sgacop30/sga/storage/database/postgres"
)

// Storage holds the repositories and the connection they share. DB is nil for the in-memory engine.
type Storage struct {
	DB *sqlx.DB

	Users         user.Repository
	Agenda        agenda.Repository
	Passes        passe.Repository
	Notifications notification.Repository
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

type repositories struct {
	dig.Out

	User         user.Repository
	Agenda       agenda.Repository
	Passe        passe.Repository
	Notification notification.Repository
}

type serverParams struct {
	dig.In

	Conf            *core.Config
	Logger          core.Logger
	UserSvc         user.ServiceInterface
	AgendaSvc       agenda.ServiceInterface
	PasseSvc        passe.ServiceInterface
	NotificationSvc notification.ServiceInterface
	Validate        *validator.Validate
	Translator      ut.Translator
	Metrics         *echoapi.Metrics
	Clock           clockwork.Clock
}

func newLogger(conf *core.Config) (core.Logger, error) {
	logger, err := logsvc.NewRollbarLogger(conf)
	if err != nil {
		return nil, errors.Wrap(err, "creating logger")
	}
	return logger, nil
}

// NewStorage opens the configured storage engine. Postgres databases are created when missing.
func NewStorage(conf *core.Config) (*Storage, error) {
	if conf.Database.InMemory() {
		db := inmemdb.Open()
		return &Storage{
			Users:         inmemdb.NewUserRepository(db),
			Agenda:        inmemdb.NewAgendaRepository(db),
			Passes:        inmemdb.NewPasseRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	return &Storage{
		DB:            db,
		Users:         pgrepos.NewUserRepository(db),
		Agenda:        pgrepos.NewAgendaRepository(db),
		Passes:        pgrepos.NewPasseRepository(db),
		Notifications: pgrepos.NewNotificationRepository(db),
	}, nil
}

func provideRepositories(s *Storage) repositories {
	return repositories{
		User:         s.Users,
		Agenda:       s.Agenda,
		Passe:        s.Passes,
		Notification: s.Notifications,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewValidator returns a validator with every custom validation and its English translations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:            p.Conf,
		Logger:          p.Logger,
		UserSvc:         p.UserSvc,
		AgendaSvc:       p.AgendaSvc,
		PasseSvc:        p.PasseSvc,
		NotificationSvc: p.NotificationSvc,
		Validate:        p.Validate,
		Translator:      p.Translator,
		Metrics:         p.Metrics,
		Clock:           p.Clock,
	})
}

// New returns a dependency injection dig.Container built around conf.
// The HTTP server is only constructed when something invokes a function depending on it.
func New(conf *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(func() *core.Config { return conf }))
	must(c.Provide(newLogger))
	must(c.Provide(clockwork.NewRealClock))
	must(c.Provide(NewStorage))
	must(c.Provide(provideRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(pushsvc.NewService))
	must(c.Provide(NewValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(agenda.NewService))
	must(c.Provide(passe.NewService))
	must(c.Provide(notification.NewService))
	must(c.Provide(echoapi.NewMetrics))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
