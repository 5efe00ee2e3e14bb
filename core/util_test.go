package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, time.November, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "just now", t: now.Add(-30 * time.Second), want: "agora mesmo"},
		{name: "exactly a minute", t: now.Add(-time.Minute), want: "agora mesmo"},
		{name: "one minute", t: now.Add(-61 * time.Second), want: "há 1 minuto"},
		{name: "minutes", t: now.Add(-45 * time.Minute), want: "há 45 minutos"},
		{name: "exactly an hour", t: now.Add(-time.Hour), want: "há 60 minutos"},
		{name: "one hour", t: now.Add(-90 * time.Minute), want: "há 1 hora"},
		{name: "almost a day", t: now.Add(-24*time.Hour + time.Second), want: "há 23 horas"},
		{name: "hours", t: now.Add(-5 * time.Hour), want: "há 5 horas"},
		{name: "one day", t: now.Add(-25 * time.Hour), want: "há 1 dia"},
		{name: "days", t: now.Add(-72 * time.Hour), want: "há 3 dias"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeAgo(tt.t, now))
		})
	}
}

func TestCleanOrderings(t *testing.T) {
	allowed := map[string]string{"created_at": "u.created_at", "name": "u.name"}
	ords := []DBOrdering{
		{Field: "createdAt", Ascending: true},
		{Field: "name"},
		{Field: "password_hash"},
		{Field: "passwordHash"},
		{Field: ""},
	}

	got := CleanOrderings(ords, allowed)

	assert.Equal(t, []DBOrdering{
		{Field: "u.created_at", Ascending: true},
		{Field: "u.name"},
	}, got)
	assert.Equal(t, "u.name DESC", got[1].String())
}

func TestPage(t *testing.T) {
	p := Page{}.Clean()
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, DefaultPageSize, p.Size)
	assert.Equal(t, 0, p.Offset())

	p = Page{Number: 3, Size: 20}.Clean()
	assert.Equal(t, 40, p.Offset())
}
