package inmemdb

import (
	"sync"

	"github.com/sgacop30/sga/core/agenda"
	"github.com/sgacop30/sga/core/notification"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
)

type (
	// DB keeps every table in memory. Each table has its own lock and primary key sequence.
	DB struct {
		user         *userTable
		event        *eventTable
		favorite     *favoriteTable
		pass         *passTable
		validation   *validationTable
		notification *notificationTable
		announcement *announcementTable
	}

	userTable struct {
		sync.RWMutex
		pk    int
		table map[int]*user.User
	}

	eventTable struct {
		sync.RWMutex
		pk    int
		table map[int]*agenda.Event
	}

	favoriteKey struct {
		userID, eventID int
	}

	favoriteTable struct {
		sync.RWMutex
		table map[favoriteKey]agenda.Favorite
	}

	passTable struct {
		sync.RWMutex
		pk    int
		table map[int]*passe.Pass
	}

	validationTable struct {
		sync.RWMutex
		pk    int
		table []passe.Validation
	}

	notificationTable struct {
		sync.RWMutex
		pk    int
		table map[int]*notification.Notification
	}

	announcementTable struct {
		sync.RWMutex
		pk    int
		table map[int]*notification.Announcement
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[int]*user.User)},
		event:        &eventTable{table: make(map[int]*agenda.Event)},
		favorite:     &favoriteTable{table: make(map[favoriteKey]agenda.Favorite)},
		pass:         &passTable{table: make(map[int]*passe.Pass)},
		validation:   &validationTable{},
		notification: &notificationTable{table: make(map[int]*notification.Notification)},
		announcement: &announcementTable{table: make(map[int]*notification.Announcement)},
	}
}
