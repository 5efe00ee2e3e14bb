package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
)

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         user.ServiceInterface
		AgendaSvc       agenda.ServiceInterface
		PasseSvc        passe.ServiceInterface
		NotificationSvc notification.ServiceInterface
		Validate        *validator.Validate
		Translator      ut.Translator
		Metrics         *Metrics
		Clock           clockwork.Clock
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		server   *http.Server
		jwt      jwtAuth
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.AgendaSvc, "AgendaSvc"),
		vala.IsNotNil(deps.PasseSvc, "PasseSvc"),
		vala.IsNotNil(deps.NotificationSvc, "NotificationSvc"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).CheckAndPanic()

	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		deps: deps,
		app:  echo.New(),
		jwt:  newJWTAuth(deps.Conf),
		server: &http.Server{
			Addr:         deps.Conf.Server.Host,
			ReadTimeout:  deps.Conf.Server.ReadTimeout,
			WriteTimeout: deps.Conf.Server.WriteTimeout,
		},
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.IPExtractor = newIPExtractor(conf.Server.TrustedProxies)
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.deps.Metrics.Middleware())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.jwt.config)
	authed := []echo.MiddlewareFunc{jwt, contextUserMiddleware(s.deps.UserSvc)}
	qrLimiter := newRateLimiter(conf.Server.QRRateLimit, conf.Server.QRRateBurst)

	registerUserAPI(v1, authed, s.jwt, s.deps.UserSvc, s.deps.Validate, s.deps.Logger)
	registerAgendaAPI(v1, authed, s.deps.AgendaSvc, s.deps.Validate)
	registerPasseAPI(v1, authed, qrLimiter, s.deps.PasseSvc, s.deps.Metrics, s.deps.Clock)
	registerNotificationAPI(v1, authed, s.deps.NotificationSvc, s.deps.Validate)
}

// Start serves until Shutdown is called. Listener failures are sent to Errors.
func (s *Server) Start() {
	s.server.Handler = s.app
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Bem-vindo(a) à API do "+s.deps.Conf.AppName+"!")
}
