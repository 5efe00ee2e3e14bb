package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core/passe"
)

var passeErrMessages = map[error]string{
	passe.ErrPassInactive: "Este passe está inativo",
}

type passeApi struct {
	svc     passe.ServiceInterface
	metrics *Metrics
	clock   clockwork.Clock
}

func registerPasseAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	limiter echo.MiddlewareFunc,
	svc passe.ServiceInterface,
	metrics *Metrics,
	clock clockwork.Clock,
) {
	api := passeApi{svc: svc, metrics: metrics, clock: clock}

	pg := g.Group("/passe")

	// holder side check, open to anyone holding a code
	pg.GET("/validar-qr", api.validatePublic, limiter)

	ag := pg.Group("", authed...)
	ag.GET("", api.info)
	ag.POST("/gerar-qr", api.regenerate)
	ag.GET("/qr.png", api.qrCode)
	ag.GET("/ultimas-validacoes", api.recentValidations)
	ag.POST("/totp", api.enableTOTP)
	ag.POST("/totp/verificar", api.verifyTOTP, limiter)

	adm := ag.Group("/admin", staffMiddleware())
	adm.POST("/validar", api.validate, limiter)
	adm.GET("/estatisticas", api.stats)
	adm.PUT("/:user_id/ativo", api.setActive, managerMiddleware())
}

type (
	CodeRequest struct {
		Code string `json:"codigo" form:"codigo" query:"codigo"`
	}

	ValidationResponse struct {
		Valid        bool              `json:"valido"`
		Message      string            `json:"mensagem,omitempty"`
		Error        string            `json:"erro,omitempty"`
		Code         string            `json:"codigo,omitempty"`
		User         *passe.HolderInfo `json:"usuario,omitempty"`
		ValidationID int               `json:"validacao_id,omitempty"`
		ValidatedAt  *time.Time        `json:"data_validacao,omitempty"`
	}

	SetPassActiveRequest struct {
		Active *bool `json:"ativo"`
	}
)

func (api *passeApi) info(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	info, err := api.svc.Info(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting pass info")
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *passeApi) regenerate(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Regenerate(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "regenerating pass code")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *passeApi) qrCode(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	size, _ := strconv.Atoi(ctx.QueryParam("size"))
	png, err := api.svc.QRCodePNG(reqContext(ctx), usr.ID, size)
	if err != nil {
		return errors.Wrap(err, "rendering qr code")
	}

	h := ctx.Response().Header()
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	return ctx.Blob(http.StatusOK, "image/png", png)
}

func (api *passeApi) recentValidations(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	vals, err := api.svc.RecentValidations(reqContext(ctx), usr.ID, 0)
	if err != nil {
		return errors.Wrap(err, "listing recent validations")
	}
	return ctx.JSON(http.StatusOK, vals)
}

func (api *passeApi) validatePublic(ctx echo.Context) error {
	code := ctx.QueryParam("codigo")
	res, err := api.svc.ValidatePublic(reqContext(ctx), code, ctx.RealIP())
	return api.validationResponse(ctx, passe.MethodUUID, code, res, err)
}

func (api *passeApi) validate(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	var data CodeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CodeRequest")
	}
	res, err := api.svc.Validate(reqContext(ctx), data.Code, ctx.RealIP(), usr.ID)
	return api.validationResponse(ctx, passe.MethodUUID, data.Code, res, err)
}

// validationResponse reports a validation outcome as {valido, ...}. Only unexpected errors reach the error handler.
func (api *passeApi) validationResponse(ctx echo.Context, method, code string, res passe.ValidationResult, err error) error {
	cause := errors.Cause(err)
	if err != nil {
		status, known := domainErrors[cause]
		if !known {
			return errors.Wrap(err, "validating pass")
		}
		api.metrics.observeValidation(method, err)

		msg, ok := passeErrMessages[cause]
		if !ok {
			msg = cause.Error()
		}
		out := ValidationResponse{Valid: false, Error: msg}
		if cause != passe.ErrCodeMissing {
			out.Code = code
		}
		return ctx.JSON(status, out)
	}
	api.metrics.observeValidation(method, nil)

	return ctx.JSON(http.StatusOK, ValidationResponse{
		Valid:        true,
		Message:      "Passe válido para " + res.User.Name,
		Code:         code,
		User:         &res.User,
		ValidationID: res.ValidationID,
		ValidatedAt:  &res.ValidatedAt,
	})
}

func (api *passeApi) enableTOTP(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	setup, err := api.svc.EnableTOTP(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "enabling totp")
	}
	return ctx.JSON(http.StatusOK, setup)
}

func (api *passeApi) verifyTOTP(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	var data CodeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CodeRequest")
	}

	err = api.svc.VerifyTOTP(reqContext(ctx), usr.ID, data.Code, ctx.RealIP())
	if status, known := domainErrors[errors.Cause(err)]; err != nil && known {
		api.metrics.observeValidation(passe.MethodTOTP, err)
		return ctx.JSON(status, ValidationResponse{Valid: false, Error: errors.Cause(err).Error()})
	} else if err != nil {
		return errors.Wrap(err, "verifying totp")
	}
	api.metrics.observeValidation(passe.MethodTOTP, nil)
	return ctx.JSON(http.StatusOK, ValidationResponse{Valid: true, Message: "Código TOTP válido"})
}

func (api *passeApi) stats(ctx echo.Context) error {
	since := startOfDay(api.clock.Now())
	if v := ctx.QueryParam("desde"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid desde")
		}
		since = t
	}
	stats, err := api.svc.Stats(reqContext(ctx), since)
	if err != nil {
		return errors.Wrap(err, "computing pass stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *passeApi) setActive(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}
	var data SetPassActiveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPassActiveRequest")
	}
	if data.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "ativo is required")
	}

	p, err := api.svc.SetActive(reqContext(ctx), usr, userID, *data.Active)
	if err != nil {
		return errors.Wrap(err, "setting pass active")
	}
	return ctx.JSON(http.StatusOK, p)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
