package notification

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sgacop30/sga/core"
)

// Notification kinds
const (
	KindInfo    = "info"
	KindSuccess = "success"
	KindWarning = "warning"
	KindError   = "error"
)

// Announcement levels
const (
	LevelInfo     = "info"
	LevelAlert    = "alerta"
	LevelCritical = "critico"
)

const (
	// ListWindow bounds how far back the notification list goes.
	ListWindow = 10 * time.Hour
	// ReadRetention is how long a read notification is kept.
	ReadRetention = time.Hour
)

var (
	levelCSS = map[string]string{
		LevelInfo:     "info",
		LevelAlert:    "warning",
		LevelCritical: "danger",
	}
	levelIcons = map[string]string{
		LevelInfo:     "info-circle",
		LevelAlert:    "exclamation-triangle",
		LevelCritical: "exclamation-circle",
	}
)

type Notification struct {
	ID        int        `json:"id"`
	UserID    int        `json:"usuario_id"`
	Title     string     `json:"titulo"`
	Message   string     `json:"mensagem"`
	Kind      string     `json:"tipo"`
	EventID   *int       `json:"evento_id"`
	CreatedAt time.Time  `json:"criada_em"` // UTC
	CreatedBy *int       `json:"criado_por"`
	Read      bool       `json:"lida"`
	ReadAt    *time.Time `json:"lida_em"`
	ExpiresAt time.Time  `json:"data_expiracao"`
}

func (n Notification) IsExpired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

type NotificationView struct {
	Notification
	TimeAgo string `json:"tempo_decorrido"`
}

type NewNotification struct {
	UserID    int
	Title     string
	Message   string
	Kind      string
	EventID   *int
	CreatedBy *int
	ExpiresAt *time.Time
}

type ListResult struct {
	Notifications []NotificationView `json:"notificacoes"`
	Total         int                `json:"total"`
	Unread        int                `json:"nao_lidas"`
}

// CleanupCriteria selects what Cleanup removes. The categories do not overlap.
type CleanupCriteria struct {
	ReadBefore   time.Time // read notifications read before
	UnreadBefore time.Time // unread notifications created before
	Now          time.Time // anything else expired by
}

type CleanupResult struct {
	ReadOld   int `json:"lidas_antigas" boil:"read_old"`
	UnreadOld int `json:"nao_lidas_antigas" boil:"unread_old"`
	Expired   int `json:"expiradas" boil:"expired"`
}

func (r CleanupResult) Total() int { return r.ReadOld + r.UnreadOld + r.Expired }

type ReminderResult struct {
	Created int `json:"criados"`
	Skipped int `json:"ignorados"`
	Pushed  int `json:"push_enviados"`
}

type Announcement struct {
	ID        int        `json:"id"`
	Title     string     `json:"titulo"`
	Message   string     `json:"mensagem"`
	Level     string     `json:"nivel"`
	Pinned    bool       `json:"fixo_no_topo"`
	Active    bool       `json:"ativo"`
	CreatedAt time.Time  `json:"data_criacao"`
	ExpiresAt *time.Time `json:"data_expiracao"`
	CreatedBy *int       `json:"criado_por"`
}

func (a Announcement) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

func (a Announcement) IsVisible(now time.Time) bool {
	return a.Active && !a.IsExpired(now)
}

func (a Announcement) CSSClass() string {
	if css, ok := levelCSS[a.Level]; ok {
		return css
	}
	return "info"
}

func (a Announcement) Icon() string {
	if icon, ok := levelIcons[a.Level]; ok {
		return icon
	}
	return "info"
}

type AnnouncementView struct {
	Announcement
	CSSClass string `json:"classe_css"`
	Icon     string `json:"icone"`
	Expired  bool   `json:"expirado"`
}

func newAnnouncementView(a Announcement, now time.Time) AnnouncementView {
	return AnnouncementView{Announcement: a, CSSClass: a.CSSClass(), Icon: a.Icon(), Expired: a.IsExpired(now)}
}

type NewAnnouncement struct {
	Title     string     `json:"titulo" validate:"required,max=200"`
	Message   string     `json:"mensagem" validate:"required"`
	Level     string     `json:"nivel" validate:"omitempty,oneof=info alerta critico"`
	Pinned    bool       `json:"fixo_no_topo"`
	ExpiresAt *time.Time `json:"data_expiracao"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Level = core.CleanString(na.Level, true /* lower */)
	if na.Level == "" {
		na.Level = LevelInfo
	}
	return validate.Struct(na)
}
