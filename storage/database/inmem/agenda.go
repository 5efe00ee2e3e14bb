package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
)

type agendaRepository struct {
	db *DB
}

var _ agenda.Repository = (*agendaRepository)(nil) // interface compliance check

func NewAgendaRepository(db *DB) agenda.Repository {
	return &agendaRepository{db: db}
}

func sortByStart(events []agenda.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartTime.Before(events[j].StartTime)
	})
}

func (repo *agendaRepository) CreateEvent(_ context.Context, evt agenda.Event, _ ...core.DBExecutor) (agenda.Event, error) {
	repo.db.event.Lock()
	defer repo.db.event.Unlock()

	repo.db.event.pk++
	evt.ID = repo.db.event.pk
	repo.db.event.table[evt.ID] = &evt
	return evt, nil
}

func (repo *agendaRepository) GetEvent(_ context.Context, id int, _ ...core.DBExecutor) (agenda.Event, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	if evt, ok := repo.db.event.table[id]; ok {
		return *evt, nil
	}
	return agenda.Event{}, agenda.ErrEventNotFound
}

func (repo *agendaRepository) ListEventsStartingFrom(_ context.Context, from time.Time, _ ...core.DBExecutor) ([]agenda.Event, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	events := make([]agenda.Event, 0)
	for _, evt := range repo.db.event.table {
		if !evt.StartTime.Before(from) {
			events = append(events, *evt)
		}
	}
	sortByStart(events)
	return events, nil
}

func (repo *agendaRepository) ListFavoriteEventIDs(_ context.Context, userID int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.favorite.RLock()
	defer repo.db.favorite.RUnlock()

	ids := make([]int, 0)
	for k := range repo.db.favorite.table {
		if k.userID == userID {
			ids = append(ids, k.eventID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *agendaRepository) AddFavorite(_ context.Context, fav agenda.Favorite, _ ...core.DBExecutor) (bool, error) {
	repo.db.favorite.Lock()
	defer repo.db.favorite.Unlock()

	k := favoriteKey{userID: fav.UserID, eventID: fav.EventID}
	if _, ok := repo.db.favorite.table[k]; ok {
		return false, nil
	}
	repo.db.favorite.table[k] = fav
	return true, nil
}

func (repo *agendaRepository) RemoveFavorite(_ context.Context, userID, eventID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.favorite.Lock()
	defer repo.db.favorite.Unlock()

	k := favoriteKey{userID: userID, eventID: eventID}
	if _, ok := repo.db.favorite.table[k]; !ok {
		return false, nil
	}
	delete(repo.db.favorite.table, k)
	return true, nil
}

func (repo *agendaRepository) DeleteFavoritesStartingBefore(_ context.Context, userID int, t time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()
	repo.db.favorite.Lock()
	defer repo.db.favorite.Unlock()

	var n int
	for k := range repo.db.favorite.table {
		if k.userID != userID {
			continue
		}
		if evt, ok := repo.db.event.table[k.eventID]; ok && evt.StartTime.Before(t) {
			delete(repo.db.favorite.table, k)
			n++
		}
	}
	return n, nil
}

func (repo *agendaRepository) ListFavoriteEvents(_ context.Context, userID int, _ ...core.DBExecutor) ([]agenda.Event, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()
	repo.db.favorite.RLock()
	defer repo.db.favorite.RUnlock()

	events := make([]agenda.Event, 0)
	for k := range repo.db.favorite.table {
		if k.userID != userID {
			continue
		}
		if evt, ok := repo.db.event.table[k.eventID]; ok {
			events = append(events, *evt)
		}
	}
	sortByStart(events)
	return events, nil
}

func (repo *agendaRepository) ListFavoritesStartingBetween(_ context.Context, from, to time.Time, _ ...core.DBExecutor) ([]agenda.Reminder, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()
	repo.db.favorite.RLock()
	defer repo.db.favorite.RUnlock()

	reminders := make([]agenda.Reminder, 0)
	for k := range repo.db.favorite.table {
		evt, ok := repo.db.event.table[k.eventID]
		if !ok || evt.StartTime.Before(from) || !evt.StartTime.Before(to) {
			continue
		}
		reminders = append(reminders, agenda.Reminder{UserID: k.userID, Event: *evt})
	}
	sort.Slice(reminders, func(i, j int) bool {
		a, b := reminders[i], reminders[j]
		if !a.Event.StartTime.Equal(b.Event.StartTime) {
			return a.Event.StartTime.Before(b.Event.StartTime)
		}
		if a.Event.ID != b.Event.ID {
			return a.Event.ID < b.Event.ID
		}
		return a.UserID < b.UserID
	})
	return reminders, nil
}
