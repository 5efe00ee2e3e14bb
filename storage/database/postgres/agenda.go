package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
)

const eventColumns = "e.id, e.title, e.description, e.location, e.speaker, e.start_time, e.end_time, e.tags, e.important, e.latitude, e.longitude, e.created_at, e.created_by"

type eventRow struct {
	ID          int          `db:"id"`
	Title       string       `db:"title"`
	Description string       `db:"description"`
	Location    string       `db:"location"`
	Speaker     string       `db:"speaker"`
	StartTime   null.Time    `db:"start_time"`
	EndTime     null.Time    `db:"end_time"`
	Tags        string       `db:"tags"`
	Important   bool         `db:"important"`
	Latitude    null.Float64 `db:"latitude"`
	Longitude   null.Float64 `db:"longitude"`
	CreatedAt   time.Time    `db:"created_at"`
	CreatedBy   null.Int     `db:"created_by"`
}

func (row eventRow) unmarshal() agenda.Event {
	return agenda.Event{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Location:    row.Location,
		Speaker:     row.Speaker,
		StartTime:   row.StartTime.Time.UTC(),
		EndTime:     row.EndTime.Time.UTC(),
		Tags:        row.Tags,
		Important:   row.Important,
		Latitude:    row.Latitude.Ptr(),
		Longitude:   row.Longitude.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		CreatedBy:   row.CreatedBy.Ptr(),
	}
}

func unmarshalEvents(rows []eventRow) []agenda.Event {
	events := make([]agenda.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.unmarshal())
	}
	return events
}

type agendaRepository struct {
	repo
}

var _ agenda.Repository = (*agendaRepository)(nil) // interface compliance check

func NewAgendaRepository(db *sqlx.DB) agenda.Repository {
	return &agendaRepository{repo{db: db}}
}

func (r agendaRepository) CreateEvent(ctx context.Context, evt agenda.Event, exec ...core.DBExecutor) (agenda.Event, error) {
	q := `INSERT INTO events (title, description, location, speaker, start_time, end_time, tags, important, latitude, longitude, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	err := sqlx.GetContext(ctx, r.getExt(exec), &evt.ID, q,
		evt.Title,
		evt.Description,
		evt.Location,
		evt.Speaker,
		null.TimeFrom(evt.StartTime.UTC()),
		null.TimeFrom(evt.EndTime.UTC()),
		evt.Tags,
		evt.Important,
		null.Float64FromPtr(evt.Latitude),
		null.Float64FromPtr(evt.Longitude),
		evt.CreatedAt.UTC(),
		null.IntFromPtr(evt.CreatedBy),
	)
	if err != nil {
		return agenda.Event{}, errors.Wrap(err, "inserting event")
	}
	return evt, nil
}

func (r agendaRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (agenda.Event, error) {
	var row eventRow
	if err := sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+eventColumns+" FROM events e WHERE e.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return agenda.Event{}, agenda.ErrEventNotFound
		}
		return agenda.Event{}, errors.Wrap(err, "finding event")
	}
	return row.unmarshal(), nil
}

func (r agendaRepository) ListEventsStartingFrom(ctx context.Context, from time.Time, exec ...core.DBExecutor) ([]agenda.Event, error) {
	var rows []eventRow
	q := "SELECT " + eventColumns + " FROM events e WHERE e.start_time >= $1 ORDER BY e.start_time, e.id"
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &rows, q, from.UTC()); err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	return unmarshalEvents(rows), nil
}

func (r agendaRepository) ListFavoriteEventIDs(ctx context.Context, userID int, exec ...core.DBExecutor) ([]int, error) {
	ids := make([]int, 0)
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &ids, "SELECT event_id FROM favorites WHERE user_id = $1 ORDER BY event_id", userID); err != nil {
		return nil, errors.Wrap(err, "listing favorite ids")
	}
	return ids, nil
}

func (r agendaRepository) AddFavorite(ctx context.Context, fav agenda.Favorite, exec ...core.DBExecutor) (bool, error) {
	q := "INSERT INTO favorites (user_id, event_id, added_at) VALUES ($1, $2, $3) ON CONFLICT (user_id, event_id) DO NOTHING"
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, fav.UserID, fav.EventID, fav.AddedAt.UTC()))
	if err != nil {
		return false, errors.Wrap(err, "inserting favorite")
	}
	return n > 0, nil
}

func (r agendaRepository) RemoveFavorite(ctx context.Context, userID, eventID int, exec ...core.DBExecutor) (bool, error) {
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, "DELETE FROM favorites WHERE user_id = $1 AND event_id = $2", userID, eventID))
	if err != nil {
		return false, errors.Wrap(err, "deleting favorite")
	}
	return n > 0, nil
}

func (r agendaRepository) DeleteFavoritesStartingBefore(ctx context.Context, userID int, t time.Time, exec ...core.DBExecutor) (int, error) {
	q := `DELETE FROM favorites f USING events e
		WHERE f.event_id = e.id AND f.user_id = $1 AND e.start_time < $2`
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, userID, t.UTC()))
	if err != nil {
		return 0, errors.Wrap(err, "deleting past favorites")
	}
	return n, nil
}

func (r agendaRepository) ListFavoriteEvents(ctx context.Context, userID int, exec ...core.DBExecutor) ([]agenda.Event, error) {
	var rows []eventRow
	q := "SELECT " + eventColumns + " FROM events e JOIN favorites f ON f.event_id = e.id WHERE f.user_id = $1 ORDER BY e.start_time, e.id"
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "listing favorite events")
	}
	return unmarshalEvents(rows), nil
}

type reminderRow struct {
	UserID int `db:"user_id"`
	eventRow
}

func (r agendaRepository) ListFavoritesStartingBetween(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) ([]agenda.Reminder, error) {
	var rows []reminderRow
	q := "SELECT f.user_id, " + eventColumns + ` FROM favorites f JOIN events e ON e.id = f.event_id
		WHERE e.start_time >= $1 AND e.start_time < $2 ORDER BY e.start_time, e.id, f.user_id`
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &rows, q, from.UTC(), to.UTC()); err != nil {
		return nil, errors.Wrap(err, "listing upcoming favorites")
	}
	reminders := make([]agenda.Reminder, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, agenda.Reminder{UserID: row.UserID, Event: row.eventRow.unmarshal()})
	}
	return reminders, nil
}
