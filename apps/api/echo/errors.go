package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domainErrors maps service sentinel errors to HTTP status codes.
var domainErrors = map[error]int{
	user.ErrNotFound:                     http.StatusNotFound,
	user.ErrInvalidCredentials:           http.StatusBadRequest,
	user.ErrAccountDeactivated:           http.StatusForbidden,
	user.ErrPermissionDenied:             http.StatusForbidden,
	agenda.ErrEventNotFound:              http.StatusNotFound,
	agenda.ErrPastEvent:                  http.StatusBadRequest,
	agenda.ErrInvalidTimes:               http.StatusBadRequest,
	agenda.ErrPermissionDenied:           http.StatusForbidden,
	passe.ErrPassNotFound:                http.StatusNotFound,
	passe.ErrCodeMissing:                 http.StatusBadRequest,
	passe.ErrCodeNotFound:                http.StatusNotFound,
	passe.ErrPassInactive:                http.StatusForbidden,
	passe.ErrCodeExpired:                 http.StatusBadRequest,
	passe.ErrPassDeactivated:             http.StatusForbidden,
	passe.ErrTOTPNotEnabled:              http.StatusBadRequest,
	passe.ErrTOTPInvalid:                 http.StatusBadRequest,
	passe.ErrPermissionDenied:            http.StatusForbidden,
	notification.ErrNotFound:             http.StatusNotFound,
	notification.ErrAnnouncementNotFound: http.StatusNotFound,
	notification.ErrPermissionDenied:     http.StatusForbidden,
}

// domainStatus looks err up in domainErrors. Errors of unhashable types never match.
func domainStatus(err error) (int, bool) {
	if t := reflect.TypeOf(err); t == nil || !t.Comparable() {
		return 0, false
	}
	status, ok := domainErrors[err]
	return status, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := domainStatus(cause); ok {
				code = status
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if u, ok := contextUser(ctx); ok {
				usr = u
			} else if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID, _ = claims.UserID()
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
