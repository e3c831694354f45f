package service

import (
	"context"

	"github.com/mbeoliero/tradechat/internal/entity"
)

// Notifier publishes events to the sessions subscribed to a conversation.
// Implementations must not block: persistence has already committed and
// delivery is best-effort.
type Notifier interface {
	PublishMessage(msg *entity.MessageInfo)
	PublishRead(receipt *entity.ReadReceipt)
}

// PresenceChecker reports which parties currently hold a live session
type PresenceChecker interface {
	OnlineParties(ctx context.Context, partyIds []string) map[string]bool
}
