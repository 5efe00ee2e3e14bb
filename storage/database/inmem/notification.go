package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	repo.db.notification.pk++
	n.ID = repo.db.notification.pk
	repo.db.notification.table[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id int, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	if n, ok := repo.db.notification.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) ListNotifications(_ context.Context, userID int, since, now time.Time, _ ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.notification.table {
		if n.UserID == userID && !n.CreatedAt.Before(since) && !n.IsExpired(now) {
			notifs = append(notifs, *n)
		}
	}
	sort.Slice(notifs, func(i, j int) bool {
		if notifs[i].CreatedAt.Equal(notifs[j].CreatedAt) {
			return notifs[i].ID > notifs[j].ID
		}
		return notifs[i].CreatedAt.After(notifs[j].CreatedAt)
	})
	return notifs, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID int, now time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	var cnt int
	for _, n := range repo.db.notification.table {
		if n.UserID == userID && !n.Read && !n.IsExpired(now) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	if _, ok := repo.db.notification.table[n.ID]; !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	repo.db.notification.table[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID int, readAt, expiresAt time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	var cnt int
	for _, n := range repo.db.notification.table {
		if n.UserID == userID && !n.Read {
			at := readAt
			n.Read, n.ReadAt, n.ExpiresAt = true, &at, expiresAt
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) NotificationExists(_ context.Context, userID, eventID int, title string, _ ...core.DBExecutor) (bool, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	for _, n := range repo.db.notification.table {
		if n.UserID == userID && n.EventID != nil && *n.EventID == eventID && n.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func cleanupCategory(n notification.Notification, c notification.CleanupCriteria) (readOld, unreadOld, expired bool) {
	switch {
	case n.Read && n.ReadAt != nil && n.ReadAt.Before(c.ReadBefore):
		return true, false, false
	case !n.Read && n.CreatedAt.Before(c.UnreadBefore):
		return false, true, false
	case n.ExpiresAt.Before(c.Now):
		return false, false, true
	}
	return false, false, false
}

func (repo *notificationRepository) CleanupNotifications(_ context.Context, c notification.CleanupCriteria, dryRun bool, _ ...core.DBExecutor) (notification.CleanupResult, error) {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	var res notification.CleanupResult
	for id, n := range repo.db.notification.table {
		readOld, unreadOld, expired := cleanupCategory(*n, c)
		switch {
		case readOld:
			res.ReadOld++
		case unreadOld:
			res.UnreadOld++
		case expired:
			res.Expired++
		default:
			continue
		}
		if !dryRun {
			delete(repo.db.notification.table, id)
		}
	}
	return res, nil
}

func (repo *notificationRepository) CreateAnnouncement(_ context.Context, a notification.Announcement, _ ...core.DBExecutor) (notification.Announcement, error) {
	repo.db.announcement.Lock()
	defer repo.db.announcement.Unlock()

	repo.db.announcement.pk++
	a.ID = repo.db.announcement.pk
	repo.db.announcement.table[a.ID] = &a
	return a, nil
}

func (repo *notificationRepository) GetAnnouncement(_ context.Context, id int, _ ...core.DBExecutor) (notification.Announcement, error) {
	repo.db.announcement.RLock()
	defer repo.db.announcement.RUnlock()

	if a, ok := repo.db.announcement.table[id]; ok {
		return *a, nil
	}
	return notification.Announcement{}, notification.ErrAnnouncementNotFound
}

func (repo *notificationRepository) ListAnnouncements(_ context.Context, _ ...core.DBExecutor) ([]notification.Announcement, error) {
	repo.db.announcement.RLock()
	defer repo.db.announcement.RUnlock()

	all := make([]notification.Announcement, 0, len(repo.db.announcement.table))
	for _, a := range repo.db.announcement.table {
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Pinned != all[j].Pinned {
			return all[i].Pinned
		}
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return all, nil
}

func (repo *notificationRepository) UpdateAnnouncement(_ context.Context, a notification.Announcement, _ ...core.DBExecutor) (notification.Announcement, error) {
	repo.db.announcement.Lock()
	defer repo.db.announcement.Unlock()

	if _, ok := repo.db.announcement.table[a.ID]; !ok {
		return notification.Announcement{}, notification.ErrAnnouncementNotFound
	}
	repo.db.announcement.table[a.ID] = &a
	return a, nil
}

func (repo *notificationRepository) DeleteAnnouncement(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.announcement.Lock()
	defer repo.db.announcement.Unlock()

	if _, ok := repo.db.announcement.table[id]; !ok {
		return notification.ErrAnnouncementNotFound
	}
	delete(repo.db.announcement.table, id)
	return nil
}
