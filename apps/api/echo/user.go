package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

const objectContextKey = "object"

type userApi struct {
	svc      user.ServiceInterface
	auth     jwtAuth
	validate *validator.Validate
	logger   core.Logger
}

func registerUserAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	auth jwtAuth,
	svc user.ServiceInterface,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := userApi{
		svc:      svc,
		auth:     auth,
		validate: validate,
		logger:   logger,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/register", api.register)
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.PUT("/me", api.updateMe)
	ag.POST("/me/password", api.changePassword)

	ag.GET("", api.query, staffMiddleware())
	ag.POST("", api.create, staffMiddleware())
	ag.DELETE("", api.destroyMultiple, superuserMiddleware())
	ag.GET("/counts", api.counts, staffMiddleware())
	ag.GET("/roles", api.queryRoles, staffMiddleware())

	// detail endpoints: permission checks run before the :id lookup
	withUser := ctxUserOrStaffMiddleware(svc)
	ag.GET("/:id", api.retrieve, withUser)
	ag.PUT("/:id/role", api.setRole, superuserMiddleware(), withUser)
	ag.PUT("/:id/active", api.setActive, managerMiddleware(), withUser)
	ag.DELETE("/:id", api.destroy, superuserMiddleware(), withUser)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	data.Papel = "" // self registration never grants a role
	if err := data.Validate(reqContext(ctx), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(reqContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(reqContext(ctx), api.validate, api.svc); err != nil {
		return err
	}

	ctxUsr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.Create(reqContext(ctx), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(reqContext(ctx), data.Email, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return errAuthenticationFailed
		case user.ErrAccountDeactivated:
			return errAccountDeactivated
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.tokenFor(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(reqContext(ctx), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(reqContext(ctx), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(usr, api.validate); err != nil {
		return err
	}

	usr, err = api.svc.UpdateProfile(reqContext(ctx), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err = api.svc.ChangePassword(reqContext(ctx), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been changed."})
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	res, err := api.svc.Query(reqContext(ctx), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *userApi) counts(ctx echo.Context) error {
	counts, err := api.svc.Counts(reqContext(ctx))
	if err != nil {
		return errors.Wrap(err, "counting users")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get(objectContextKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) setRole(ctx echo.Context) error {
	target, ok := ctx.Get(objectContextKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	var data SetRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRoleRequest")
	}
	data.Papel = core.CleanString(data.Papel, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ctxUsr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.SetRole(reqContext(ctx), ctxUsr, target.ID, data.Papel)
	if err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, SetRoleResponse{
		Success: true,
		Message: "Papel de " + usr.Name + " atualizado para " + usr.Papel() + ".",
		User:    usr,
	})
}

func (api *userApi) setActive(ctx echo.Context) error {
	target, ok := ctx.Get(objectContextKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	var data SetActiveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetActiveRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ctxUsr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.SetActive(reqContext(ctx), ctxUsr, target.ID, *data.Active)
	if err != nil {
		return errors.Wrap(err, "setting active")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get(objectContextKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(reqContext(ctx), ctxUsr, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	ids := make([]int, 0)
	for _, v := range ctx.QueryParams()["id"] {
		id, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	ctxUsr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(reqContext(ctx), ctxUsr, ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ctxUserOrStaffMiddleware puts the :id user in the context when it is the context user or the context user is staff.
func ctxUserOrStaffMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := mustContextUser(ctx)
			if err != nil {
				return err
			}
			id, err := paramID(ctx, "id")
			if err != nil {
				return err
			}

			if id == ctxUsr.ID || ctxUsr.CanAccessAdmin() {
				if usr, err := svc.GetByID(reqContext(ctx), id); err == nil {
					ctx.Set(objectContextKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

func bindUserFilter(ctx echo.Context) (*user.QueryFilter, error) {
	filter := &user.QueryFilter{
		Search: ctx.QueryParam("search"),
		Papeis: ctx.QueryParams()["papel"],
	}
	for param, dst := range map[string]**bool{"is_active": &filter.IsActive, "is_staff": &filter.IsStaff} {
		if v := ctx.QueryParam(param); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, core.NewValidationError(nil, core.FieldError{Field: param, Error: "invalid boolean"})
			}
			*dst = &b
		}
	}
	for param, dst := range map[string]*time.Time{"created_from": &filter.CreatedFrom, "created_to": &filter.CreatedTo} {
		if v := ctx.QueryParam(param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, core.NewValidationError(nil, core.FieldError{Field: param, Error: "invalid datetime"})
			}
			*dst = t
		}
	}
	filter.Clean()
	return filter, nil
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	SetRoleRequest struct {
		Papel string `json:"papel" validate:"required,papel"`
	}

	SetRoleResponse struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		User    user.User `json:"user"`
	}

	SetActiveRequest struct {
		Active *bool `json:"ativo" validate:"required"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
