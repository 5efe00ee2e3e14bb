package core

import (
	"fmt"
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// TimeAgo renders the time elapsed between t and now in pt-BR ("há 2 horas", "agora mesmo").
// Hours and minutes only kick in past a whole hour or minute, so 60s is still "agora mesmo".
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	if d >= 24*time.Hour {
		return plural(int(d/(24*time.Hour)), "dia", "dias")
	}
	secs := int(d / time.Second)
	switch {
	case secs > 3600:
		return plural(secs/3600, "hora", "horas")
	case secs > 60:
		return plural(secs/60, "minuto", "minutos")
	default:
		return "agora mesmo"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("há %d %s", n, one)
	}
	return fmt.Sprintf("há %d %s", n, many)
}
