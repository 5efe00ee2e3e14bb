package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core/agenda"
)

type agendaApi struct {
	svc      agenda.ServiceInterface
	validate *validator.Validate
}

func registerAgendaAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc agenda.ServiceInterface, validate *validator.Validate) {
	api := agendaApi{svc: svc, validate: validate}

	eg := g.Group("/events", authed...)
	eg.GET("", api.list)
	eg.POST("", api.create, eventsStaffMiddleware())
	eg.GET("/map", api.listMap)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/favorite", api.addFavorite)
	eg.DELETE("/:id/favorite", api.removeFavorite)

	g.GET("/agenda", api.personalAgenda, authed...)
}

type (
	FavoriteResponse struct {
		Success      bool   `json:"success"`
		Message      string `json:"message"`
		AlreadyAdded bool   `json:"already_added"`
	}

	UnfavoriteResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Removed bool   `json:"removido"`
	}
)

func (api *agendaApi) list(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	events, err := api.svc.ListEvents(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing events")
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *agendaApi) listMap(ctx echo.Context) error {
	events, err := api.svc.ListMapEvents(reqContext(ctx))
	if err != nil {
		return errors.Wrap(err, "listing map events")
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *agendaApi) retrieve(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	evt, err := api.svc.GetEvent(reqContext(ctx), id, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *agendaApi) create(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	var data agenda.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	evt, err := api.svc.CreateEvent(reqContext(ctx), data, &usr)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *agendaApi) addFavorite(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	already, err := api.svc.AddFavorite(reqContext(ctx), usr.ID, id)
	if err != nil {
		return errors.Wrap(err, "adding favorite")
	}

	res := FavoriteResponse{Success: true, Message: "Evento adicionado à sua agenda.", AlreadyAdded: already}
	if already {
		res.Message = "Este evento já está na sua agenda."
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *agendaApi) removeFavorite(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	removed, err := api.svc.RemoveFavorite(reqContext(ctx), usr.ID, id)
	if err != nil {
		return errors.Wrap(err, "removing favorite")
	}

	res := UnfavoriteResponse{Success: true, Message: "Evento removido da sua agenda.", Removed: removed}
	if !removed {
		res.Message = "Este evento não estava na sua agenda."
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *agendaApi) personalAgenda(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	events, err := api.svc.PersonalAgenda(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing personal agenda")
	}
	return ctx.JSON(http.StatusOK, events)
}
