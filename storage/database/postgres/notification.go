package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/notification"
)

const (
	notificationColumns = "id, user_id, title, message, kind, event_id, created_at, created_by, read, read_at, expires_at"
	announcementColumns = "id, title, message, level, pinned, active, created_at, expires_at, created_by"

	// the three cleanup categories; $1 read before, $2 unread created before, $3 now
	cleanupReadOld   = "(read AND read_at IS NOT NULL AND read_at < $1)"
	cleanupUnreadOld = "(NOT read AND created_at < $2)"
	cleanupExpired   = "(expires_at IS NOT NULL AND expires_at < $3 AND NOT " + cleanupReadOld + " AND NOT " + cleanupUnreadOld + ")"
)

type notificationRow struct {
	ID        int       `db:"id"`
	UserID    int       `db:"user_id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Kind      string    `db:"kind"`
	EventID   null.Int  `db:"event_id"`
	CreatedAt time.Time `db:"created_at"`
	CreatedBy null.Int  `db:"created_by"`
	Read      bool      `db:"read"`
	ReadAt    null.Time `db:"read_at"`
	ExpiresAt null.Time `db:"expires_at"`
}

func (row notificationRow) unmarshal() notification.Notification {
	n := notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Message:   row.Message,
		Kind:      row.Kind,
		EventID:   row.EventID.Ptr(),
		CreatedAt: row.CreatedAt.UTC(),
		CreatedBy: row.CreatedBy.Ptr(),
		Read:      row.Read,
		ExpiresAt: row.ExpiresAt.Time.UTC(),
	}
	if row.ReadAt.Valid {
		at := row.ReadAt.Time.UTC()
		n.ReadAt = &at
	}
	return n
}

type announcementRow struct {
	ID        int       `db:"id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Level     string    `db:"level"`
	Pinned    bool      `db:"pinned"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt null.Time `db:"expires_at"`
	CreatedBy null.Int  `db:"created_by"`
}

func (row announcementRow) unmarshal() notification.Announcement {
	a := notification.Announcement{
		ID:        row.ID,
		Title:     row.Title,
		Message:   row.Message,
		Level:     row.Level,
		Pinned:    row.Pinned,
		Active:    row.Active,
		CreatedAt: row.CreatedAt.UTC(),
		CreatedBy: row.CreatedBy.Ptr(),
	}
	if row.ExpiresAt.Valid {
		exp := row.ExpiresAt.Time.UTC()
		a.ExpiresAt = &exp
	}
	return a
}

type notificationRepository struct {
	repo
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{repo{db: db}}
}

func (r notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	q := `INSERT INTO notifications (user_id, title, message, kind, event_id, created_at, created_by, read, read_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	err := sqlx.GetContext(ctx, r.getExt(exec), &n.ID, q,
		n.UserID,
		n.Title,
		n.Message,
		n.Kind,
		null.IntFromPtr(n.EventID),
		n.CreatedAt.UTC(),
		null.IntFromPtr(n.CreatedBy),
		n.Read,
		null.TimeFromPtr(n.ReadAt),
		null.NewTime(n.ExpiresAt.UTC(), !n.ExpiresAt.IsZero()),
	)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (r notificationRepository) GetNotification(ctx context.Context, id int, exec ...core.DBExecutor) (notification.Notification, error) {
	var row notificationRow
	if err := sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "finding notification")
	}
	return row.unmarshal(), nil
}

func (r notificationRepository) ListNotifications(ctx context.Context, userID int, since, now time.Time, exec ...core.DBExecutor) ([]notification.Notification, error) {
	var rows []notificationRow
	q := "SELECT " + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND created_at >= $2 AND (expires_at IS NULL OR expires_at >= $3)
		ORDER BY created_at DESC, id DESC`
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &rows, q, userID, since.UTC(), now.UTC()); err != nil {
		return nil, errors.Wrap(err, "listing notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.unmarshal())
	}
	return notifs, nil
}

func (r notificationRepository) CountUnread(ctx context.Context, userID int, now time.Time, exec ...core.DBExecutor) (int, error) {
	q := "SELECT COUNT(*) AS count FROM notifications WHERE user_id = $1 AND NOT read AND (expires_at IS NULL OR expires_at >= $2)"
	cnt, err := r.count(ctx, exec, q, userID, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (r notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	q := "UPDATE notifications SET title = $1, message = $2, kind = $3, read = $4, read_at = $5, expires_at = $6 WHERE id = $7"
	cnt, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q,
		n.Title, n.Message, n.Kind, n.Read, null.TimeFromPtr(n.ReadAt), null.NewTime(n.ExpiresAt.UTC(), !n.ExpiresAt.IsZero()), n.ID))
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	if cnt == 0 {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, nil
}

func (r notificationRepository) MarkAllRead(ctx context.Context, userID int, readAt, expiresAt time.Time, exec ...core.DBExecutor) (int, error) {
	q := "UPDATE notifications SET read = TRUE, read_at = $1, expires_at = $2 WHERE user_id = $3 AND NOT read"
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, readAt.UTC(), expiresAt.UTC(), userID))
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	return n, nil
}

func (r notificationRepository) NotificationExists(ctx context.Context, userID, eventID int, title string, exec ...core.DBExecutor) (bool, error) {
	q := "SELECT COUNT(*) AS count FROM notifications WHERE user_id = $1 AND event_id = $2 AND title = $3"
	cnt, err := r.count(ctx, exec, q, userID, eventID, title)
	if err != nil {
		return false, errors.Wrap(err, "checking notification")
	}
	return cnt > 0, nil
}

func (r notificationRepository) CleanupNotifications(ctx context.Context, c notification.CleanupCriteria, dryRun bool, exec ...core.DBExecutor) (notification.CleanupResult, error) {
	args := []interface{}{c.ReadBefore.UTC(), c.UnreadBefore.UTC(), c.Now.UTC()}

	var res notification.CleanupResult
	q := `SELECT COUNT(*) FILTER (WHERE ` + cleanupReadOld + `) AS read_old,
		COUNT(*) FILTER (WHERE ` + cleanupUnreadOld + `) AS unread_old,
		COUNT(*) FILTER (WHERE ` + cleanupExpired + `) AS expired
		FROM notifications`
	if err := queries.Raw(q, args...).Bind(ctx, r.getExec(exec), &res); err != nil {
		return notification.CleanupResult{}, errors.Wrap(err, "counting stale notifications")
	}
	if dryRun || res.Total() == 0 {
		return res, nil
	}

	q = "DELETE FROM notifications WHERE " + cleanupReadOld + " OR " + cleanupUnreadOld + " OR " + cleanupExpired
	if _, err := r.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return notification.CleanupResult{}, errors.Wrap(err, "deleting stale notifications")
	}
	return res, nil
}

func (r notificationRepository) CreateAnnouncement(ctx context.Context, a notification.Announcement, exec ...core.DBExecutor) (notification.Announcement, error) {
	q := `INSERT INTO announcements (title, message, level, pinned, active, created_at, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := sqlx.GetContext(ctx, r.getExt(exec), &a.ID, q,
		a.Title, a.Message, a.Level, a.Pinned, a.Active, a.CreatedAt.UTC(), null.TimeFromPtr(a.ExpiresAt), null.IntFromPtr(a.CreatedBy))
	if err != nil {
		return notification.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return a, nil
}

func (r notificationRepository) GetAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) (notification.Announcement, error) {
	var row announcementRow
	if err := sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+announcementColumns+" FROM announcements WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return notification.Announcement{}, notification.ErrAnnouncementNotFound
		}
		return notification.Announcement{}, errors.Wrap(err, "finding announcement")
	}
	return row.unmarshal(), nil
}

func (r notificationRepository) ListAnnouncements(ctx context.Context, exec ...core.DBExecutor) ([]notification.Announcement, error) {
	var rows []announcementRow
	q := "SELECT " + announcementColumns + " FROM announcements ORDER BY pinned DESC, created_at DESC, id DESC"
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing announcements")
	}
	all := make([]notification.Announcement, 0, len(rows))
	for _, row := range rows {
		all = append(all, row.unmarshal())
	}
	return all, nil
}

func (r notificationRepository) UpdateAnnouncement(ctx context.Context, a notification.Announcement, exec ...core.DBExecutor) (notification.Announcement, error) {
	q := "UPDATE announcements SET title = $1, message = $2, level = $3, pinned = $4, active = $5, expires_at = $6 WHERE id = $7"
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, a.Title, a.Message, a.Level, a.Pinned, a.Active, null.TimeFromPtr(a.ExpiresAt), a.ID))
	if err != nil {
		return notification.Announcement{}, errors.Wrap(err, "updating announcement")
	}
	if n == 0 {
		return notification.Announcement{}, notification.ErrAnnouncementNotFound
	}
	return a, nil
}

func (r notificationRepository) DeleteAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) error {
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	if n == 0 {
		return notification.ErrAnnouncementNotFound
	}
	return nil
}
