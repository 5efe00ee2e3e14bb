package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core/notification"
)

type notificationApi struct {
	svc      notification.ServiceInterface
	validate *validator.Validate
}

func registerNotificationAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc notification.ServiceInterface, validate *validator.Validate) {
	api := notificationApi{svc: svc, validate: validate}

	ng := g.Group("/notificacoes", authed...)
	ng.GET("", api.list)
	ng.GET("/nao-lidas", api.unreadCount)
	ng.POST("/:id/lida", api.markRead)
	ng.POST("/marcar-todas-lidas", api.markAllRead)

	ag := g.Group("/avisos", authed...)
	ag.GET("", api.listAnnouncements)
	ag.GET("/arquivo", api.listArchivedAnnouncements, staffMiddleware())
	ag.POST("", api.createAnnouncement, staffMiddleware())
	ag.POST("/:id/toggle", api.toggleAnnouncement, staffMiddleware())
	ag.DELETE("/:id", api.deleteAnnouncement, staffMiddleware())
}

type (
	MarkReadResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	MarkAllReadResponse struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}

	UnreadCountResponse struct {
		Unread int `json:"nao_lidas"`
	}
)

func (api *notificationApi) list(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.List(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.UnreadCount(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Unread: n})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if _, err = api.svc.MarkRead(reqContext(ctx), usr.ID, id); err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, MarkReadResponse{Success: true, Message: "Notificação marcada como lida"})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkAllRead(reqContext(ctx), usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications as read")
	}
	return ctx.JSON(http.StatusOK, MarkAllReadResponse{Success: true, Count: n})
}

func (api *notificationApi) listAnnouncements(ctx echo.Context) error {
	avisos, err := api.svc.ListVisibleAnnouncements(reqContext(ctx))
	if err != nil {
		return errors.Wrap(err, "listing announcements")
	}
	return ctx.JSON(http.StatusOK, avisos)
}

func (api *notificationApi) listArchivedAnnouncements(ctx echo.Context) error {
	avisos, err := api.svc.ListArchivedAnnouncements(reqContext(ctx))
	if err != nil {
		return errors.Wrap(err, "listing archived announcements")
	}
	return ctx.JSON(http.StatusOK, avisos)
}

func (api *notificationApi) createAnnouncement(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	var data notification.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	aviso, err := api.svc.CreateAnnouncement(reqContext(ctx), data, &usr)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, aviso)
}

func (api *notificationApi) toggleAnnouncement(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	aviso, err := api.svc.ToggleAnnouncement(reqContext(ctx), usr, id)
	if err != nil {
		return errors.Wrap(err, "toggling announcement")
	}
	return ctx.JSON(http.StatusOK, aviso)
}

func (api *notificationApi) deleteAnnouncement(ctx echo.Context) error {
	usr, err := mustContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.DeleteAnnouncement(reqContext(ctx), usr, id); err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return ctx.NoContent(http.StatusNoContent)
}
