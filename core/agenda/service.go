package agenda

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
)

var (
	// errors
	ErrEventNotFound    = errors.New("event not found")
	ErrPastEvent        = errors.New("this event has already taken place")
	ErrInvalidTimes     = errors.New("end time must be after start time")
	ErrPermissionDenied = errors.New("permission denied")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, evt Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (Event, error)
		// ListEventsStartingFrom returns the events starting at or after from, ordered by start time.
		ListEventsStartingFrom(ctx context.Context, from time.Time, exec ...core.DBExecutor) ([]Event, error)
		ListFavoriteEventIDs(ctx context.Context, userID int, exec ...core.DBExecutor) ([]int, error)
		// AddFavorite returns false when the favorite already exists.
		AddFavorite(ctx context.Context, fav Favorite, exec ...core.DBExecutor) (bool, error)
		RemoveFavorite(ctx context.Context, userID, eventID int, exec ...core.DBExecutor) (bool, error)
		// DeleteFavoritesStartingBefore deletes userID's favorites of events starting before t.
		DeleteFavoritesStartingBefore(ctx context.Context, userID int, t time.Time, exec ...core.DBExecutor) (int, error)
		ListFavoriteEvents(ctx context.Context, userID int, exec ...core.DBExecutor) ([]Event, error)
		ListFavoritesStartingBetween(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) ([]Reminder, error)
	}

	ServiceInterface interface {
		ListEvents(ctx context.Context, userID int) ([]EventView, error)
		GetEvent(ctx context.Context, id, userID int) (EventView, error)
		ListMapEvents(ctx context.Context) ([]Event, error)
		AddFavorite(ctx context.Context, userID, eventID int) (alreadyAdded bool, err error)
		RemoveFavorite(ctx context.Context, userID, eventID int) (bool, error)
		PersonalAgenda(ctx context.Context, userID int) ([]Event, error)
		CreateEvent(ctx context.Context, ne NewEvent, creator *user.User) (Event, error)
		FavoritesStartingBetween(ctx context.Context, from, to time.Time) ([]Reminder, error)
	}

	service struct {
		repo  Repository
		clock clockwork.Clock
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, clock clockwork.Clock) ServiceInterface {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(clock, "clock"),
	).CheckAndPanic()

	return &service{repo: repo, clock: clock}
}

func (svc *service) now() time.Time {
	return svc.clock.Now().UTC()
}

func (svc *service) upcoming(ctx context.Context) ([]Event, error) {
	events, err := svc.repo.ListEventsStartingFrom(ctx, svc.now().Add(-EventWindow))
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func (svc *service) favoriteSet(ctx context.Context, userID int) (map[int]bool, error) {
	ids, err := svc.repo.ListFavoriteEventIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing favorites")
	}
	favs := make(map[int]bool, len(ids))
	for _, id := range ids {
		favs[id] = true
	}
	return favs, nil
}

func (svc *service) ListEvents(ctx context.Context, userID int) ([]EventView, error) {
	events, err := svc.upcoming(ctx)
	if err != nil {
		return nil, err
	}
	favs, err := svc.favoriteSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]EventView, 0, len(events))
	for _, evt := range events {
		views = append(views, EventView{Event: evt, IsFavorited: favs[evt.ID]})
	}
	return views, nil
}

func (svc *service) GetEvent(ctx context.Context, id, userID int) (EventView, error) {
	evt, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return EventView{}, err
	}
	favs, err := svc.favoriteSet(ctx, userID)
	if err != nil {
		return EventView{}, err
	}
	return EventView{Event: evt, IsFavorited: favs[evt.ID], IsPast: evt.IsPast(svc.now())}, nil
}

func (svc *service) ListMapEvents(ctx context.Context) ([]Event, error) {
	events, err := svc.upcoming(ctx)
	if err != nil {
		return nil, err
	}
	located := make([]Event, 0, len(events))
	for _, evt := range events {
		if evt.HasCoordinates() {
			located = append(located, evt)
		}
	}
	return located, nil
}

func (svc *service) AddFavorite(ctx context.Context, userID, eventID int) (bool, error) {
	evt, err := svc.repo.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	now := svc.now()
	if evt.IsPast(now) {
		return false, core.NewValidationError(ErrPastEvent)
	}
	added, err := svc.repo.AddFavorite(ctx, Favorite{UserID: userID, EventID: eventID, AddedAt: now})
	if err != nil {
		return false, errors.Wrap(err, "adding favorite")
	}
	return !added, nil
}

func (svc *service) RemoveFavorite(ctx context.Context, userID, eventID int) (bool, error) {
	if _, err := svc.repo.GetEvent(ctx, eventID); err != nil {
		return false, err
	}
	removed, err := svc.repo.RemoveFavorite(ctx, userID, eventID)
	if err != nil {
		return false, errors.Wrap(err, "removing favorite")
	}
	return removed, nil
}

// PersonalAgenda drops the user's favorites of past events and lists the remaining ones.
func (svc *service) PersonalAgenda(ctx context.Context, userID int) ([]Event, error) {
	if _, err := svc.repo.DeleteFavoritesStartingBefore(ctx, userID, svc.now().Add(-EventWindow)); err != nil {
		return nil, errors.Wrap(err, "purging past favorites")
	}
	events, err := svc.repo.ListFavoriteEvents(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing favorite events")
	}
	if events == nil {
		events = []Event{}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].StartTime.Before(events[j].StartTime) })
	return events, nil
}

// CreateEvent creates an event. A nil creator means the system (CLI seeding).
func (svc *service) CreateEvent(ctx context.Context, ne NewEvent, creator *user.User) (Event, error) {
	if creator != nil && !creator.IsEventsStaff() {
		return Event{}, ErrPermissionDenied
	}
	if ne.Tags == "" {
		ne.Tags = DefaultTags
	}
	if !ne.EndTime.After(ne.StartTime) {
		return Event{}, core.NewValidationError(ErrInvalidTimes, core.FieldError{Field: "data_hora_fim", Error: ErrInvalidTimes.Error()})
	}

	evt := Event{
		Title:       ne.Title,
		Description: ne.Description,
		Location:    ne.Location,
		Speaker:     ne.Speaker,
		StartTime:   ne.StartTime.UTC(),
		EndTime:     ne.EndTime.UTC(),
		Tags:        ne.Tags,
		Important:   ne.Important,
		Latitude:    ne.Latitude,
		Longitude:   ne.Longitude,
		CreatedAt:   svc.now(),
	}
	if creator != nil {
		id := creator.ID
		evt.CreatedBy = &id
	}
	return svc.repo.CreateEvent(ctx, evt)
}

func (svc *service) FavoritesStartingBetween(ctx context.Context, from, to time.Time) ([]Reminder, error) {
	reminders, err := svc.repo.ListFavoritesStartingBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "listing upcoming favorites")
	}
	return reminders, nil
}
