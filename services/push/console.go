package pushsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/sgacop30/sga/core"
)

// ConsoleService logs pushes and keeps them in memory.
type ConsoleService struct {
	logger core.Logger

	mu   sync.Mutex
	sent []core.PushMessage
}

var _ core.PushService = (*ConsoleService)(nil)

// NewConsoleService logs pushes instead of sending them.
func NewConsoleService(logger core.Logger) *ConsoleService {
	return &ConsoleService{logger: logger}
}

func (svc *ConsoleService) Send(_ context.Context, msg core.PushMessage) error {
	svc.mu.Lock()
	svc.sent = append(svc.sent, msg)
	svc.mu.Unlock()
	svc.logger.Debug(fmt.Sprintf("push to %s: %s - %s", msg.ExternalID, msg.Title, msg.Message))
	return nil
}

// Sent returns a copy of the pushes logged so far.
func (svc *ConsoleService) Sent() []core.PushMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	sent := make([]core.PushMessage, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}

// NewService returns the OneSignal service when it is configured, the console one otherwise.
func NewService(conf *core.Config, logger core.Logger) core.PushService {
	if conf.Push.Enabled() {
		return NewOneSignalService(conf)
	}
	return NewConsoleService(logger)
}
