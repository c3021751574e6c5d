package core

import (
	"context"
	"log"

	"github.com/plantae-ai/plantae-server/internal/store"
)

// SessionDrainer hands over an anonymous session's chats exactly once:
// draining removes the session, so a repeated call finds nothing.
type SessionDrainer interface {
	Drain(ctx context.Context, ownerID string) ([]*store.Chat, error)
}

// UsageResetter clears an anonymous session's free-usage counters.
type UsageResetter interface {
	ResetAll(ctx context.Context, sessionID string) error
}

// MigrationService carries anonymous chat history into the durable per-user
// store when a session authenticates for the first time. The copy is
// best-effort: a chat that fails to transfer is logged and skipped, never
// blocking the rest of the history or the sign-in itself.
type MigrationService struct {
	anon    SessionDrainer
	durable store.ChatStore
	usage   UsageResetter
}

func NewMigrationService(anon SessionDrainer, durable store.ChatStore, usage UsageResetter) *MigrationService {
	return &MigrationService{
		anon:    anon,
		durable: durable,
		usage:   usage,
	}
}

// Migrate moves the session's chats to the user and resets the session's
// usage counters. Invoked once per anonymous-to-authenticated transition;
// the drain consumes the session, which is what makes a second invocation
// for the same token a no-op rather than a duplicate copy. Replaying the
// same drained history twice would duplicate chats, so callers must not
// cache and re-submit it.
func (m *MigrationService) Migrate(ctx context.Context, sessionID, userID string) {
	chats, err := m.anon.Drain(ctx, sessionID)
	if err != nil {
		log.Printf("Error draining anonymous session %s: %v", sessionID, err)
	}

	if len(chats) > 0 {
		log.Printf("Migrating %d anonymous chats for user %s", len(chats), userID)
	}

	for _, anonChat := range chats {
		newChat, err := m.durable.CreateChat(ctx, userID, anonChat.Title)
		if err != nil {
			log.Printf("Error migrating chat %q: %v", anonChat.Title, err)
			continue
		}

		// Replay sequentially so remote writes land in conversation order.
		// Timestamps are regenerated by the durable store; message identity
		// does not survive the migration and does not need to.
		migrated := true
		for _, msg := range anonChat.Messages {
			if _, err := m.durable.AppendMessage(ctx, userID, newChat.ID, msg.Role, msg.Content); err != nil {
				log.Printf("Error migrating a message of chat %q: %v", anonChat.Title, err)
				migrated = false
				break
			}
		}
		if migrated {
			log.Printf("Migrated chat: %s", anonChat.Title)
		}
	}

	if err := m.usage.ResetAll(ctx, sessionID); err != nil {
		log.Printf("Error resetting usage counters for session %s: %v", sessionID, err)
	}
}
