package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/user"
)

var (
	// errors
	ErrNotFound             = errors.New("notification not found")
	ErrAnnouncementNotFound = errors.New("announcement not found")
	ErrPermissionDenied     = errors.New("permission denied")
)

const (
	reminderTitle   = "Lembrete de Evento: %s"
	reminderMessage = "O evento \"%s\" começará em breve no local: %s."
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		GetNotification(ctx context.Context, id int, exec ...core.DBExecutor) (Notification, error)
		// ListNotifications returns userID's notifications created after since and not expired at now, newest first.
		ListNotifications(ctx context.Context, userID int, since, now time.Time, exec ...core.DBExecutor) ([]Notification, error)
		CountUnread(ctx context.Context, userID int, now time.Time, exec ...core.DBExecutor) (int, error)
		UpdateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		MarkAllRead(ctx context.Context, userID int, readAt, expiresAt time.Time, exec ...core.DBExecutor) (int, error)
		NotificationExists(ctx context.Context, userID, eventID int, title string, exec ...core.DBExecutor) (bool, error)
		CleanupNotifications(ctx context.Context, criteria CleanupCriteria, dryRun bool, exec ...core.DBExecutor) (CleanupResult, error)

		CreateAnnouncement(ctx context.Context, a Announcement, exec ...core.DBExecutor) (Announcement, error)
		GetAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) (Announcement, error)
		// ListAnnouncements returns every announcement, pinned first then newest.
		ListAnnouncements(ctx context.Context, exec ...core.DBExecutor) ([]Announcement, error)
		UpdateAnnouncement(ctx context.Context, a Announcement, exec ...core.DBExecutor) (Announcement, error)
		DeleteAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, nn NewNotification) (Notification, error)
		List(ctx context.Context, userID int) (ListResult, error)
		UnreadCount(ctx context.Context, userID int) (int, error)
		MarkRead(ctx context.Context, userID, id int) (Notification, error)
		MarkAllRead(ctx context.Context, userID int) (int, error)
		Cleanup(ctx context.Context, dryRun bool) (CleanupResult, error)
		SendEventReminders(ctx context.Context) (ReminderResult, error)

		ListVisibleAnnouncements(ctx context.Context) ([]AnnouncementView, error)
		ListArchivedAnnouncements(ctx context.Context) ([]AnnouncementView, error)
		CreateAnnouncement(ctx context.Context, na NewAnnouncement, actor *user.User) (Announcement, error)
		ToggleAnnouncement(ctx context.Context, actor user.User, id int) (Announcement, error)
		DeleteAnnouncement(ctx context.Context, actor user.User, id int) error
	}

	service struct {
		repo      Repository
		agendaSvc agenda.ServiceInterface
		pushSvc   core.PushService
		logger    core.Logger
		conf      *core.Config
		clock     clockwork.Clock
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(
	repo Repository,
	agendaSvc agenda.ServiceInterface,
	pushSvc core.PushService,
	logger core.Logger,
	conf *core.Config,
	clock clockwork.Clock,
) ServiceInterface {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(agendaSvc, "agendaSvc"),
		vala.IsNotNil(pushSvc, "pushSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(clock, "clock"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		agendaSvc: agendaSvc,
		pushSvc:   pushSvc,
		logger:    logger,
		conf:      conf,
		clock:     clock,
	}
}

func (svc *service) now() time.Time {
	return svc.clock.Now().UTC()
}

func (svc *service) Create(ctx context.Context, nn NewNotification) (Notification, error) {
	now := svc.now()
	n := Notification{
		UserID:    nn.UserID,
		Title:     core.CleanString(nn.Title),
		Message:   nn.Message,
		Kind:      nn.Kind,
		EventID:   nn.EventID,
		CreatedAt: now,
		CreatedBy: nn.CreatedBy,
		ExpiresAt: now.Add(svc.conf.Notification.TTL),
	}
	if n.Kind == "" {
		n.Kind = KindInfo
	}
	if nn.ExpiresAt != nil {
		n.ExpiresAt = nn.ExpiresAt.UTC()
	}
	return svc.repo.CreateNotification(ctx, n)
}

func (svc *service) List(ctx context.Context, userID int) (ListResult, error) {
	now := svc.now()
	notifs, err := svc.repo.ListNotifications(ctx, userID, now.Add(-ListWindow), now)
	if err != nil {
		return ListResult{}, errors.Wrap(err, "listing notifications")
	}

	res := ListResult{Notifications: make([]NotificationView, 0, len(notifs)), Total: len(notifs)}
	for _, n := range notifs {
		if !n.Read {
			res.Unread++
		}
		res.Notifications = append(res.Notifications, NotificationView{Notification: n, TimeAgo: core.TimeAgo(n.CreatedAt, now)})
	}
	return res, nil
}

func (svc *service) UnreadCount(ctx context.Context, userID int) (int, error) {
	return svc.repo.CountUnread(ctx, userID, svc.now())
}

// MarkRead marks one of userID's notifications as read. It expires ReadRetention later.
func (svc *service) MarkRead(ctx context.Context, userID, id int) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrNotFound
	}
	if n.Read {
		return n, nil
	}
	now := svc.now()
	n.Read = true
	n.ReadAt = &now
	n.ExpiresAt = now.Add(ReadRetention)
	return svc.repo.UpdateNotification(ctx, n)
}

func (svc *service) MarkAllRead(ctx context.Context, userID int) (int, error) {
	now := svc.now()
	cnt, err := svc.repo.MarkAllRead(ctx, userID, now, now.Add(ReadRetention))
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	return cnt, nil
}

// Cleanup removes read notifications older than ReadRetention, unread ones older than the TTL and expired ones.
func (svc *service) Cleanup(ctx context.Context, dryRun bool) (CleanupResult, error) {
	now := svc.now()
	res, err := svc.repo.CleanupNotifications(ctx, CleanupCriteria{
		ReadBefore:   now.Add(-ReadRetention),
		UnreadBefore: now.Add(-svc.conf.Notification.TTL),
		Now:          now,
	}, dryRun)
	if err != nil {
		return CleanupResult{}, errors.Wrap(err, "cleaning up notifications")
	}
	return res, nil
}

// SendEventReminders notifies users about their favorite events starting soon.
func (svc *service) SendEventReminders(ctx context.Context) (ReminderResult, error) {
	var res ReminderResult
	now := svc.now()

	reminders, err := svc.agendaSvc.FavoritesStartingBetween(ctx, now, now.Add(svc.conf.Notification.ReminderLookahead))
	if err != nil {
		return res, err
	}

	for _, r := range reminders {
		title := fmt.Sprintf(reminderTitle, r.Event.Title)
		exists, err := svc.repo.NotificationExists(ctx, r.UserID, r.Event.ID, title)
		if err != nil {
			return res, errors.Wrap(err, "checking existing reminder")
		}
		if exists {
			res.Skipped++
			continue
		}

		eventID := r.Event.ID
		n, err := svc.Create(ctx, NewNotification{
			UserID:  r.UserID,
			Title:   title,
			Message: fmt.Sprintf(reminderMessage, r.Event.Title, r.Event.Location),
			Kind:    KindInfo,
			EventID: &eventID,
		})
		if err != nil {
			return res, errors.Wrap(err, "creating reminder")
		}
		res.Created++

		if svc.push(ctx, n) {
			res.Pushed++
		}
	}
	return res, nil
}

// push is best effort: failures are logged.
func (svc *service) push(ctx context.Context, n Notification) bool {
	msg := core.PushMessage{
		ExternalID: strconv.Itoa(n.UserID),
		Title:      n.Title,
		Message:    n.Message,
		URL:        svc.conf.FrontendBaseURL + "/notificacoes",
	}
	if n.EventID != nil {
		msg.URL = fmt.Sprintf("%s/agenda/eventos/%d", svc.conf.FrontendBaseURL, *n.EventID)
	}
	if err := svc.pushSvc.Send(ctx, msg); err != nil {
		svc.logger.Warn(fmt.Sprintf("sending push for notification %d", n.ID), err)
		return false
	}
	return true
}

func (svc *service) ListVisibleAnnouncements(ctx context.Context) ([]AnnouncementView, error) {
	return svc.listAnnouncements(ctx, func(a Announcement, now time.Time) bool { return a.IsVisible(now) })
}

func (svc *service) ListArchivedAnnouncements(ctx context.Context) ([]AnnouncementView, error) {
	return svc.listAnnouncements(ctx, func(a Announcement, now time.Time) bool { return !a.IsVisible(now) })
}

func (svc *service) listAnnouncements(ctx context.Context, keep func(Announcement, time.Time) bool) ([]AnnouncementView, error) {
	all, err := svc.repo.ListAnnouncements(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing announcements")
	}
	now := svc.now()
	views := make([]AnnouncementView, 0, len(all))
	for _, a := range all {
		if keep(a, now) {
			views = append(views, newAnnouncementView(a, now))
		}
	}
	return views, nil
}

// CreateAnnouncement creates an active announcement. A nil actor means the system (CLI).
func (svc *service) CreateAnnouncement(ctx context.Context, na NewAnnouncement, actor *user.User) (Announcement, error) {
	if actor != nil && !actor.CanAccessAdmin() {
		return Announcement{}, ErrPermissionDenied
	}
	if na.Level == "" {
		na.Level = LevelInfo
	}
	a := Announcement{
		Title:     na.Title,
		Message:   na.Message,
		Level:     na.Level,
		Pinned:    na.Pinned,
		Active:    true,
		CreatedAt: svc.now(),
	}
	if na.ExpiresAt != nil {
		exp := na.ExpiresAt.UTC()
		a.ExpiresAt = &exp
	}
	if actor != nil {
		id := actor.ID
		a.CreatedBy = &id
	}
	return svc.repo.CreateAnnouncement(ctx, a)
}

func (svc *service) ToggleAnnouncement(ctx context.Context, actor user.User, id int) (Announcement, error) {
	if !actor.CanAccessAdmin() {
		return Announcement{}, ErrPermissionDenied
	}
	a, err := svc.repo.GetAnnouncement(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	a.Active = !a.Active
	return svc.repo.UpdateAnnouncement(ctx, a)
}

func (svc *service) DeleteAnnouncement(ctx context.Context, actor user.User, id int) error {
	if !actor.CanAccessAdmin() {
		return ErrPermissionDenied
	}
	if _, err := svc.repo.GetAnnouncement(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteAnnouncement(ctx, id)
}
