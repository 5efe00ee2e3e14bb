package echoapi

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/user"
	"github.com/sgacop30/sga/testutil"
)

func Test_agendaApi_events(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)
	token := app.token(t, usr)

	now := testutil.Now
	past := testutil.CreateEvent(t, app.env.AgendaRepo, "Abertura", now.Add(-48*time.Hour))
	ongoing := testutil.CreateEvent(t, app.env.AgendaRepo, "Plenária", now.Add(-2*time.Hour))
	mapped := testutil.CreateEvent(t, app.env.AgendaRepo, "Caminhada", now.Add(24*time.Hour), -1.4558, -48.4902)

	path := func(id int) string { return "/v1/events/" + strconv.Itoa(id) }

	app.run(t, []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/v1/events", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "list hides past events", method: http.MethodGet, path: "/v1/events", token: token,
			wantData: marshalObj(t, []agenda.EventView{{Event: ongoing}, {Event: mapped}}),
		},
		{
			name: "map lists located events", method: http.MethodGet, path: "/v1/events/map", token: token,
			wantData: marshalObj(t, []agenda.Event{mapped}),
		},
		{
			name: "detail of a past event", method: http.MethodGet, path: path(past.ID), token: token,
			wantData: marshalObj(t, agenda.EventView{Event: past, IsPast: true}),
		},
		{
			name: "unknown event", method: http.MethodGet, path: path(9999), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: agenda.ErrEventNotFound.Error()}),
		},
	})
}

func Test_agendaApi_favorites(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)
	token := app.token(t, usr)

	now := testutil.Now
	past := testutil.CreateEvent(t, app.env.AgendaRepo, "Abertura", now.Add(-48*time.Hour))
	later := testutil.CreateEvent(t, app.env.AgendaRepo, "Encerramento", now.Add(48*time.Hour))
	sooner := testutil.CreateEvent(t, app.env.AgendaRepo, "Painel", now.Add(3*time.Hour))

	fav := func(id int) string { return "/v1/events/" + strconv.Itoa(id) + "/favorite" }

	app.run(t, []httpTest{
		{
			name: "add", method: http.MethodPost, path: fav(later.ID), token: token,
			wantData: marshalObj(t, FavoriteResponse{Success: true, Message: "Evento adicionado à sua agenda."}),
		},
		{
			name: "add again", method: http.MethodPost, path: fav(later.ID), token: token,
			wantData: marshalObj(t, FavoriteResponse{Success: true, Message: "Este evento já está na sua agenda.", AlreadyAdded: true}),
		},
		{name: "add another", method: http.MethodPost, path: fav(sooner.ID), token: token},
		{
			name: "past event", method: http.MethodPost, path: fav(past.ID), token: token,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: agenda.ErrPastEvent.Error()}),
		},
		{name: "unknown event", method: http.MethodPost, path: fav(9999), token: token, wantCode: http.StatusNotFound},
		{
			name: "agenda sorted by start", method: http.MethodGet, path: "/v1/agenda", token: token,
			wantData: marshalObj(t, []agenda.Event{sooner, later}),
		},
		{
			name: "remove", method: http.MethodDelete, path: fav(later.ID), token: token,
			wantData: marshalObj(t, UnfavoriteResponse{Success: true, Message: "Evento removido da sua agenda.", Removed: true}),
		},
		{
			name: "remove again", method: http.MethodDelete, path: fav(later.ID), token: token,
			wantData: marshalObj(t, UnfavoriteResponse{Success: true, Message: "Este evento não estava na sua agenda."}),
		},
		{
			name: "agenda after removal", method: http.MethodGet, path: "/v1/agenda", token: token,
			wantData: marshalObj(t, []agenda.Event{sooner}),
		},
	})

	t.Run("list marks favorites", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/events", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var views []agenda.EventView
		decode(t, rec, &views)
		favs := make(map[int]bool)
		for _, v := range views {
			favs[v.ID] = v.IsFavorited
		}
		assert.Equal(t, map[int]bool{sooner.ID: true, later.ID: false}, favs)
	})
}

func Test_agendaApi_create(t *testing.T) {
	app := newTestApp(t)
	common := app.createUser(t, "Comum", "comum@cop30.br", user.PapelNone, true)
	events := app.createUser(t, "Eventos", "eventos@cop30.br", user.PapelEvents, true)

	start := testutil.Now.Add(24 * time.Hour)
	valid := agenda.NewEvent{
		Title:     " Painel de Clima ",
		Location:  "Hangar",
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
	}
	backwards := valid
	backwards.EndTime = start.Add(-time.Hour)

	app.run(t, []httpTest{
		{
			name: "events staff required", method: http.MethodPost, path: "/v1/events", token: app.token(t, common),
			body: marshalObj(t, valid), wantCode: http.StatusForbidden,
		},
		{
			name: "title required", method: http.MethodPost, path: "/v1/events", token: app.token(t, events),
			body:     marshalObj(t, agenda.NewEvent{Location: "Hangar", StartTime: start, EndTime: start.Add(time.Hour)}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "end before start", method: http.MethodPost, path: "/v1/events", token: app.token(t, events),
			body: marshalObj(t, backwards), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"data_hora_fim": agenda.ErrInvalidTimes.Error()}),
		},
	})

	t.Run("created", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/events", app.token(t, events), marshalObj(t, valid))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var evt agenda.Event
		decode(t, rec, &evt)
		assert.NotZero(t, evt.ID)
		assert.Equal(t, "Painel de Clima", evt.Title)
		assert.Equal(t, agenda.DefaultTags, evt.Tags)
		require.NotNil(t, evt.CreatedBy)
		assert.Equal(t, events.ID, *evt.CreatedBy)
	})
}
