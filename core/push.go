package core

import "context"

type (
	// PushMessage is a web push addressed to a single user.
	PushMessage struct {
		ExternalID string // the user's ID as known by the push provider
		Title      string
		Message    string
		URL        string
	}

	// PushService delivers web push notifications.
	PushService interface {
		Send(ctx context.Context, msg PushMessage) error
	}
)
