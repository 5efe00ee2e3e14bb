package agenda_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/user"
	"github.com/sgacop30/sga/testutil"
)

func eventTitles(views []agenda.EventView) []string {
	titles := make([]string, 0, len(views))
	for _, v := range views {
		titles = append(titles, v.Title)
	}
	return titles
}

func TestService_ListEvents(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)

	testutil.CreateEvent(t, env.AgendaRepo, "Encerrado", testutil.Now.Add(-11*time.Hour))
	ongoing := testutil.CreateEvent(t, env.AgendaRepo, "Em andamento", testutil.Now.Add(-9*time.Hour))
	testutil.CreateEvent(t, env.AgendaRepo, "Amanhã", testutil.Now.Add(24*time.Hour))
	testutil.CreateEvent(t, env.AgendaRepo, "Hoje", testutil.Now.Add(2*time.Hour))

	_, err := env.AgendaSvc.AddFavorite(ctx, usr.ID, ongoing.ID)
	require.NoError(t, err)

	views, err := env.AgendaSvc.ListEvents(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Em andamento", "Hoje", "Amanhã"}, eventTitles(views))
	assert.True(t, views[0].IsFavorited)
	assert.False(t, views[1].IsFavorited)

	other, err := env.AgendaSvc.ListEvents(ctx, usr.ID+1)
	require.NoError(t, err)
	assert.False(t, other[0].IsFavorited)
}

func TestService_GetEvent(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	past := testutil.CreateEvent(t, env.AgendaRepo, "Encerrado", testutil.Now.Add(-11*time.Hour))

	view, err := env.AgendaSvc.GetEvent(ctx, past.ID, 1)
	require.NoError(t, err)
	assert.True(t, view.IsPast)

	_, err = env.AgendaSvc.GetEvent(ctx, 999, 1)
	assert.Equal(t, agenda.ErrEventNotFound, err)
}

func TestService_Favorites(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)
	past := testutil.CreateEvent(t, env.AgendaRepo, "Encerrado", testutil.Now.Add(-11*time.Hour))
	evt := testutil.CreateEvent(t, env.AgendaRepo, "Plenária", testutil.Now.Add(time.Hour))

	_, err := env.AgendaSvc.AddFavorite(ctx, usr.ID, past.ID)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Equal(t, agenda.ErrPastEvent.Error(), err.Error())

	_, err = env.AgendaSvc.AddFavorite(ctx, usr.ID, 999)
	assert.Equal(t, agenda.ErrEventNotFound, err)

	already, err := env.AgendaSvc.AddFavorite(ctx, usr.ID, evt.ID)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = env.AgendaSvc.AddFavorite(ctx, usr.ID, evt.ID)
	require.NoError(t, err)
	assert.True(t, already)

	removed, err := env.AgendaSvc.RemoveFavorite(ctx, usr.ID, evt.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = env.AgendaSvc.RemoveFavorite(ctx, usr.ID, evt.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestService_PersonalAgenda(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)
	later := testutil.CreateEvent(t, env.AgendaRepo, "Depois", testutil.Now.Add(5*time.Hour))
	soon := testutil.CreateEvent(t, env.AgendaRepo, "Logo", testutil.Now.Add(time.Hour))

	for _, id := range []int{later.ID, soon.ID} {
		_, err := env.AgendaSvc.AddFavorite(ctx, usr.ID, id)
		require.NoError(t, err)
	}

	events, err := env.AgendaSvc.PersonalAgenda(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, soon.ID, events[0].ID)
	assert.Equal(t, later.ID, events[1].ID)

	// "Logo" falls out of the window and its favorite is dropped
	env.Clock.Advance(12 * time.Hour)
	events, err = env.AgendaSvc.PersonalAgenda(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, later.ID, events[0].ID)

	ids, err := env.AgendaRepo.ListFavoriteEventIDs(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{later.ID}, ids)
}

func TestService_ListMapEvents(t *testing.T) {
	env := testutil.NewEnv()
	located := testutil.CreateEvent(t, env.AgendaRepo, "Com mapa", testutil.Now.Add(time.Hour), -1.4558, -48.4902)
	testutil.CreateEvent(t, env.AgendaRepo, "Sem mapa", testutil.Now.Add(time.Hour))

	events, err := env.AgendaSvc.ListMapEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, located.ID, events[0].ID)
}

func TestService_CreateEvent(t *testing.T) {
	env := testutil.NewEnv()
	staff := testutil.CreateUser(t, env.UserRepo, "Eva", "eva@cop30.br", "", user.PapelEvents, true)
	common := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)
	start := testutil.Now.Add(48 * time.Hour)
	ne := agenda.NewEvent{Title: "Painel", Location: "Hangar", StartTime: start, EndTime: start.Add(2 * time.Hour)}

	tests := []struct {
		name        string
		ne          agenda.NewEvent
		creator     *user.User
		wantErr     error
		wantCreator *int
	}{
		{name: "common user", ne: ne, creator: &common, wantErr: agenda.ErrPermissionDenied},
		{name: "end before start", ne: agenda.NewEvent{Title: "x", Location: "y", StartTime: start, EndTime: start}, creator: &staff, wantErr: agenda.ErrInvalidTimes},
		{name: "events staff", ne: ne, creator: &staff, wantCreator: &staff.ID},
		{name: "system", ne: ne},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt, err := env.AgendaSvc.CreateEvent(context.Background(), tc.ne, tc.creator)
			if tc.wantErr != nil {
				assert.EqualError(t, err, tc.wantErr.Error())
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, evt.ID)
			assert.Equal(t, agenda.DefaultTags, evt.Tags)
			assert.Equal(t, testutil.Now, evt.CreatedAt)
			assert.Equal(t, tc.wantCreator, evt.CreatedBy)
		})
	}
}

func TestService_FavoritesStartingBetween(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	ana := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)
	bia := testutil.CreateUser(t, env.UserRepo, "Bia", "bia@cop30.br", "", user.PapelNone, true)
	soon := testutil.CreateEvent(t, env.AgendaRepo, "Logo", testutil.Now.Add(time.Hour))
	far := testutil.CreateEvent(t, env.AgendaRepo, "Semana que vem", testutil.Now.Add(7*24*time.Hour))

	for _, fav := range []struct{ userID, eventID int }{{ana.ID, soon.ID}, {bia.ID, soon.ID}, {ana.ID, far.ID}} {
		_, err := env.AgendaSvc.AddFavorite(ctx, fav.userID, fav.eventID)
		require.NoError(t, err)
	}

	reminders, err := env.AgendaSvc.FavoritesStartingBetween(ctx, testutil.Now, testutil.Now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	for _, r := range reminders {
		assert.Equal(t, soon.ID, r.Event.ID)
	}
}

func TestEvent_TagList(t *testing.T) {
	evt := agenda.Event{Tags: " clima, energia ,,oceanos"}
	assert.Equal(t, []string{"clima", "energia", "oceanos"}, evt.TagList())
	assert.Equal(t, []string{}, agenda.Event{}.TagList())
}
